package routing

import (
	"strings"

	"github.com/trezcool/masomo-fees/core"
)

// Reference is a payer-typed account reference of the form studentRef-feeCode.
type Reference struct {
	StudentRef string
	FeeCode    string
}

// ParseReference splits raw on its last '-'. Both parts are required and the fee code
// must be 3 letters.
func ParseReference(raw string) (Reference, bool) {
	raw = strings.ToUpper(strings.ReplaceAll(core.CleanString(raw), " ", ""))
	idx := strings.LastIndex(raw, "-")
	if idx <= 0 {
		return Reference{}, false
	}
	ref := Reference{StudentRef: raw[:idx], FeeCode: raw[idx+1:]}
	if !isFeeCode(ref.FeeCode) {
		return Reference{}, false
	}
	return ref, true
}

// feeCodeOf derives a fee code from a full reference or accepts a bare 3-letter one.
func feeCodeOf(raw string) (string, bool) {
	if ref, ok := ParseReference(raw); ok {
		return ref.FeeCode, true
	}
	code := strings.ToUpper(core.CleanString(raw))
	return code, isFeeCode(code)
}

func isFeeCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
