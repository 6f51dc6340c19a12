// Package routing decides, per payment channel, how an inbound payment is matched to a fee ledger line.
package routing

import (
	"fmt"
	"strings"

	"github.com/trezcool/masomo-fees/core"
)

// Kind selects a matching strategy.
type Kind string

const (
	// KindCategoryPinned requires a fixed reference, matches by phone and credits one category.
	KindCategoryPinned Kind = "category_pinned"
	// KindLegacyMultiFee prefers phone matching and falls back to studentRef-feeCode references.
	KindLegacyMultiFee Kind = "legacy_multi_fee"
	// KindSharedGeneral matches by phone and credits any category except one.
	KindSharedGeneral Kind = "shared_general"
	// KindGeneric requires a studentRef-feeCode reference.
	KindGeneric Kind = "generic"
)

// Strategy is the routing rule for one channel.
type Strategy struct {
	Kind Kind
	// PinnedReference is the reference a KindCategoryPinned channel expects.
	PinnedReference string
	// CategoryID is the only category credited by KindCategoryPinned,
	// and the category never credited by KindSharedGeneral.
	CategoryID string
}

func (s Strategy) validate() error {
	switch s.Kind {
	case KindCategoryPinned:
		if s.PinnedReference == "" || s.CategoryID == "" {
			return fmt.Errorf("%s requires pinned_reference and category_id", s.Kind)
		}
	case KindSharedGeneral:
		if s.CategoryID == "" {
			return fmt.Errorf("%s requires category_id", s.Kind)
		}
	case KindLegacyMultiFee, KindGeneric:
	default:
		return fmt.Errorf("unknown strategy %q", s.Kind)
	}
	return nil
}

// Table maps business short-codes to strategies. Unknown short-codes use the generic strategy.
type Table struct {
	channels map[string]Strategy
	feeCodes map[string]string
}

// NewTable validates every strategy and the fee code table (3-letter code → category id).
func NewTable(channels map[string]Strategy, feeCodes map[string]string) (*Table, error) {
	t := &Table{
		channels: make(map[string]Strategy, len(channels)),
		feeCodes: make(map[string]string, len(feeCodes)),
	}
	for code, s := range channels {
		code = core.CleanString(code)
		if code == "" {
			return nil, fmt.Errorf("channel with empty short-code")
		}
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("channel %s: %v", code, err)
		}
		s.PinnedReference = core.CleanString(s.PinnedReference)
		t.channels[code] = s
	}
	for code, cat := range feeCodes {
		code = strings.ToUpper(core.CleanString(code))
		if !isFeeCode(code) {
			return nil, fmt.Errorf("fee code %q must be 3 letters", code)
		}
		if cat == "" {
			return nil, fmt.Errorf("fee code %s maps to an empty category", code)
		}
		t.feeCodes[code] = cat
	}
	return t, nil
}

// TableFromConfig builds the Table from the channels configuration.
func TableFromConfig(conf *core.Config) (*Table, error) {
	channels := make(map[string]Strategy, len(conf.Channels))
	for _, ch := range conf.Channels {
		if _, dup := channels[ch.Shortcode]; dup {
			return nil, fmt.Errorf("channel %s configured twice", ch.Shortcode)
		}
		channels[ch.Shortcode] = Strategy{
			Kind:            Kind(strings.ToLower(core.CleanString(ch.Strategy))),
			PinnedReference: ch.PinnedReference,
			CategoryID:      ch.CategoryID,
		}
	}
	return NewTable(channels, conf.FeeCodes)
}

func (t *Table) Lookup(shortcode string) Strategy {
	if s, ok := t.channels[core.CleanString(shortcode)]; ok {
		return s
	}
	return Strategy{Kind: KindGeneric}
}

// Category maps a fee code to its category id.
func (t *Table) Category(feeCode string) (string, bool) {
	cat, ok := t.feeCodes[strings.ToUpper(feeCode)]
	return cat, ok
}
