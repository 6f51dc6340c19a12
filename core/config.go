package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host               string
		Address            string
		DebugAddress       string
		ShutdownTimeout    time.Duration
		SecretKey          string
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	FeesConfig struct {
		// CurrencyScale is the number of minor units digits (2 for cents).
		CurrencyScale int32
		CountryCode   string
		CurrentTerm   string
		CurrentYear   int
		// NullTermRank is the TERMn rank given to yearly lines when ordering periods.
		NullTermRank  int
		RetrySchedule string
		RetryWindow   time.Duration
	}

	// ChannelConfig is one row of the payment channel routing table.
	ChannelConfig struct {
		Shortcode       string `mapstructure:"shortcode"`
		Strategy        string `mapstructure:"strategy"`
		PinnedReference string `mapstructure:"pinned_reference"`
		CategoryID      string `mapstructure:"category_id"`
	}

	Config struct {
		AppName          string
		Build            string
		Env              string
		Debug            bool
		TestMode         bool
		WorkDir          string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail mail.Address

		Server   ServerConfig
		Database DatabaseConfig
		Fees     FeesConfig
		Channels []ChannelConfig
		// FeeCodes maps 3-letter payment reference codes to fee category ids.
		FeeCodes map[string]string
	}
)

func (dbConf DatabaseConfig) Address() string {
	return net.JoinHostPort(dbConf.Host, strconv.Itoa(dbConf.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Masomo Fees")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "Masomo Fees <noreply@localhost>")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "masomo_fees")
	v.SetDefault("database.user", "masomo")
	v.SetDefault("database.password", "masomo")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("fees.currencyScale", 2)
	v.SetDefault("fees.countryCode", "254")
	v.SetDefault("fees.currentTerm", "TERM1")
	v.SetDefault("fees.currentYear", time.Now().Year())
	v.SetDefault("fees.nullTermRank", 1)
	v.SetDefault("fees.retrySchedule", "@every 15m")
	v.SetDefault("fees.retryWindow", 7*24*time.Hour)
}

// NewConfig reads the configuration from (in order of precedence) the environment,
// `config/.env.<env>`, `config/channels.yaml` and the defaults.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}
	confDir := filepath.Join(wd, "config")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(confDir, ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	// the channel routing table lives in a YAML file
	v.SetConfigName("channels")
	v.SetConfigType("yaml")
	v.AddConfigPath(confDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("config.ReadInConfig(): %v", err)
		}
	}

	conf, err := fromViper(v, env, wd)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

func fromViper(v *viper.Viper, env, wd string) (*Config, error) {
	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		return nil, fmt.Errorf("parsing defaultFromEmail: %v", err)
	}

	conf := &Config{
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		DefaultFromEmail: *from,
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debugAddress"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			SecretKey:          v.GetString("server.secretKey"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Fees: FeesConfig{
			CurrencyScale: v.GetInt32("fees.currencyScale"),
			CountryCode:   v.GetString("fees.countryCode"),
			CurrentTerm:   v.GetString("fees.currentTerm"),
			CurrentYear:   v.GetInt("fees.currentYear"),
			NullTermRank:  v.GetInt("fees.nullTermRank"),
			RetrySchedule: v.GetString("fees.retrySchedule"),
			RetryWindow:   v.GetDuration("fees.retryWindow"),
		},
		FeeCodes: v.GetStringMapString("fee_codes"),
	}
	if err := v.UnmarshalKey("channels", &conf.Channels); err != nil {
		return nil, fmt.Errorf("reading channels: %v", err)
	}
	return conf, nil
}
