package echoapi

import (
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
)

// Roles
const (
	RoleAdmin    = "admin:"
	RoleBursar   = "bursar:"
	RoleGuardian = "guardian:"
)

var contextClaimsKey = "userToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Username   string   `json:"username,omitempty"`
	Email      string   `json:"email,omitempty"`
	GuardianID string   `json:"guardian_id,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// HasRole matches role families: "admin:" matches "admin:owner".
func (c Claims) HasRole(family string) bool {
	for _, role := range c.Roles {
		if strings.HasPrefix(role, family) {
			return true
		}
	}
	return false
}

func (c Claims) IsStaff() bool {
	return c.HasRole(RoleAdmin) || c.HasRole(RoleBursar)
}

func (c Claims) actor() core.Actor {
	return core.Actor{ID: c.Subject, Username: c.Username, Email: c.Email, Roles: c.Roles}
}

// NewClaims returns claims valid for the configured JWT expiration delta.
func NewClaims(conf *core.Config, subject, username string, roles []string, guardianID ...string) *Claims {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			Audience:  "Masomo Fees",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: username,
		Roles:    roles,
	}
	if len(guardianID) > 0 {
		claims.GuardianID = guardianID[0]
	}
	return claims
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.Server.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextClaimsKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	jwtConf := jwtConfig(conf)
	method := jwt.GetSigningMethod(jwtConf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(jwtConf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextClaimsKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}
