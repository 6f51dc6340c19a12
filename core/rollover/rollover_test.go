package rollover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core/ledger"
)

func line(term *ledger.Term, year int, due, paid int64) ledger.Line {
	return ledger.Line{Term: term, AcademicYear: year, AmountDue: due, AmountPaid: paid}
}

func TestSummarize(t *testing.T) {
	t1, t2, t3 := ledger.Term1.Ptr(), ledger.Term2.Ptr(), ledger.Term3.Ptr()

	tests := []struct {
		name        string
		lines       []ledger.Line
		currentTerm *ledger.Term
		opts        Options
		want        Summary
	}{
		{
			name:        "no lines",
			currentTerm: t2,
			opts:        DefaultOptions,
			want:        Summary{},
		},
		{
			name:        "past surplus reduces the current balance",
			lines:       []ledger.Line{line(t1, 2024, 500, 800), line(t2, 2024, 1000, 0)},
			currentTerm: t2,
			opts:        DefaultOptions,
			want:        Summary{TotalDue: 1000, PastCredit: 300, EffectivePaid: 300, Balance: 700},
		},
		{
			name:        "past shortfall is not carried",
			lines:       []ledger.Line{line(t1, 2024, 500, 100), line(t2, 2024, 1000, 200)},
			currentTerm: t2,
			opts:        DefaultOptions,
			want:        Summary{TotalDue: 1000, TotalPaidRaw: 200, EffectivePaid: 200, Balance: 800},
		},
		{
			name: "surplus beyond the current due rolls forward",
			lines: []ledger.Line{
				line(t3, 2023, 1000, 2500), // earlier year
				line(t1, 2024, 400, 600),
				line(t2, 2024, 1000, 500),
			},
			currentTerm: t2,
			opts:        DefaultOptions,
			want:        Summary{TotalDue: 1000, TotalPaidRaw: 500, PastCredit: 1700, EffectivePaid: 2200, RolloverForward: 1200},
		},
		{
			name:        "later periods are ignored",
			lines:       []ledger.Line{line(t3, 2024, 900, 900), line(t1, 2025, 100, 5000), line(t2, 2024, 1000, 1000)},
			currentTerm: t2,
			opts:        DefaultOptions,
			want:        Summary{TotalDue: 1000, TotalPaidRaw: 1000, EffectivePaid: 1000},
		},
		{
			name:        "yearly line ranks as TERM1 by default",
			lines:       []ledger.Line{line(nil, 2024, 100, 300), line(t2, 2024, 1000, 0)},
			currentTerm: t2,
			opts:        DefaultOptions,
			want:        Summary{TotalDue: 1000, PastCredit: 200, EffectivePaid: 200, Balance: 800},
		},
		{
			name:        "yearly line is current under TERM1",
			lines:       []ledger.Line{line(nil, 2024, 100, 300), line(t1, 2024, 1000, 0)},
			currentTerm: t1,
			opts:        DefaultOptions,
			want:        Summary{TotalDue: 1100, TotalPaidRaw: 300, EffectivePaid: 300, Balance: 800},
		},
		{
			name:        "yearly line is current under its configured rank",
			lines:       []ledger.Line{line(nil, 2024, 1000, 0), line(t2, 2024, 500, 0)},
			currentTerm: t2,
			opts:        Options{NullTermRank: 2},
			want:        Summary{TotalDue: 1500, Balance: 1500},
		},
		{
			name:        "configurable yearly rank",
			lines:       []ledger.Line{line(nil, 2024, 100, 300), line(t2, 2024, 1000, 0)},
			currentTerm: t2,
			opts:        Options{NullTermRank: 3},
			want:        Summary{TotalDue: 1000, Balance: 1000},
		},
		{
			name:        "without a term the whole year is current",
			lines:       []ledger.Line{line(t1, 2024, 500, 500), line(nil, 2024, 300, 0), line(t3, 2023, 100, 250)},
			currentTerm: nil,
			opts:        DefaultOptions,
			want:        Summary{TotalDue: 800, TotalPaidRaw: 500, PastCredit: 150, EffectivePaid: 650, Balance: 150},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.lines, tt.currentTerm, 2024, tt.opts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize_unpaidYearlyLine(t *testing.T) {
	lines := []ledger.Line{line(nil, 2024, 1000, 0)}

	tests := []struct {
		term *ledger.Term
		want Summary
	}{
		{term: ledger.Term1.Ptr(), want: Summary{TotalDue: 1000, Balance: 1000}},
		{term: ledger.Term2.Ptr(), want: Summary{}}, // past: shortfalls are not carried
		{term: ledger.Term3.Ptr(), want: Summary{}},
		{term: nil, want: Summary{TotalDue: 1000, Balance: 1000}},
	}
	for _, tt := range tests {
		name := "whole year"
		if tt.term != nil {
			name = string(*tt.term)
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(lines, tt.term, 2024, DefaultOptions))
		})
	}
}

func TestNewOptions(t *testing.T) {
	for _, rank := range []int{1, 2, 3} {
		opts, err := NewOptions(rank)
		require.NoError(t, err)
		assert.Equal(t, rank, opts.NullTermRank)
	}
	for _, rank := range []int{-1, 0, 4, 7} {
		_, err := NewOptions(rank)
		assert.Error(t, err, "rank %d", rank)
	}
}

type readerMock struct {
	lines []ledger.Line
	err   error
}

func (m readerMock) StudentLines(ctx context.Context, studentID string) ([]ledger.Line, error) {
	return m.lines, m.err
}

func TestService_Summarize(t *testing.T) {
	ctx := context.Background()

	svc := NewService(readerMock{lines: []ledger.Line{line(ledger.Term1.Ptr(), 2024, 500, 800), line(ledger.Term2.Ptr(), 2024, 1000, 0)}}, DefaultOptions)
	got, err := svc.Summarize(ctx, "s1", ledger.Term2.Ptr(), 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.Balance)

	svc = NewService(readerMock{err: errors.New("boom")}, DefaultOptions)
	_, err = svc.Summarize(ctx, "s1", nil, 2024)
	assert.Error(t, err)
}
