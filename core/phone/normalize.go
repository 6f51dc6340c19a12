// Package phone normalizes payer phone numbers and resolves them to students.
package phone

import (
	"errors"
	"strings"
)

// SuffixLen is the number of trailing digits compared when matching stored numbers.
// Stored records carry inconsistent country-code prefixes; comparing the national
// significant number tolerates that at the cost of possible collisions.
const SuffixLen = 9

var ErrUnresolvable = errors.New("phone number is not in a recognized format")

// Plan describes the national numbering plan payer numbers are expected in.
type Plan struct {
	CountryCode string
	// NSNLength is the length of the national significant number.
	NSNLength int
	// LeadingDigits restricts the first digit of the NSN; empty allows any.
	LeadingDigits string
}

// KenyaPlan accepts Safaricom/Airtel mobile numbers (07xx, 01xx).
var KenyaPlan = Plan{CountryCode: "254", NSNLength: 9, LeadingDigits: "17"}

// NewPlan returns KenyaPlan with the given country calling code.
func NewPlan(countryCode string) Plan {
	p := KenyaPlan
	if countryCode != "" {
		p.CountryCode = countryCode
	}
	return p
}

var stripper = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// Normalize returns the number as country code + national significant number, digits only.
// Accepted inputs: +CC NSN, 00CC NSN, CC NSN, 0 NSN and bare NSN.
func (p Plan) Normalize(raw string) (string, error) {
	s := stripper.Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return "", ErrUnresolvable
	}
	s = strings.TrimPrefix(s, "00"+p.CountryCode)
	if len(s) == p.NSNLength { // TrimPrefix above may have left the bare NSN
		return p.withLeading(s)
	}

	var nsn string
	switch {
	case len(s) == len(p.CountryCode)+p.NSNLength && strings.HasPrefix(s, p.CountryCode):
		nsn = s[len(p.CountryCode):]
	case len(s) == p.NSNLength+1 && s[0] == '0':
		nsn = s[1:]
	default:
		return "", ErrUnresolvable
	}
	return p.withLeading(nsn)
}

func (p Plan) withLeading(nsn string) (string, error) {
	if p.LeadingDigits != "" && !strings.ContainsRune(p.LeadingDigits, rune(nsn[0])) {
		return "", ErrUnresolvable
	}
	return p.CountryCode + nsn, nil
}

// Suffix returns the trailing SuffixLen digits of a normalized number.
func Suffix(normalized string) string {
	if len(normalized) <= SuffixLen {
		return normalized
	}
	return normalized[len(normalized)-SuffixLen:]
}
