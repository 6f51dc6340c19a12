package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		scale   int32
		want    int64
		wantErr bool
	}{
		{raw: "1500", scale: 2, want: 150000},
		{raw: "1500.00", scale: 2, want: 150000},
		{raw: "1500.5", scale: 2, want: 150050},
		{raw: "0.01", scale: 2, want: 1},
		{raw: "250", scale: 0, want: 250},
		{raw: "92233720368547758.07", scale: 2, want: 9223372036854775807},
		{raw: "0.001", scale: 2, wantErr: true},
		{raw: "10.5", scale: 0, wantErr: true},
		{raw: "0", scale: 2, wantErr: true},
		{raw: "-20", scale: 2, wantErr: true},
		{raw: "", scale: 2, wantErr: true},
		{raw: "1,500", scale: 2, wantErr: true},
		{raw: "KES 10", scale: 2, wantErr: true},

		// beyond int64 minor units
		{raw: "92233720368547758.08", scale: 2, wantErr: true},
		{raw: "100000000000000000000", scale: 2, wantErr: true},
		{raw: "9223372036854775808", scale: 0, wantErr: true},
		{raw: "1e30", scale: 2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, tt.scale)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Zero(t, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1500.50", FormatAmount(150050, 2))
	assert.Equal(t, "0.07", FormatAmount(7, 2))
	assert.Equal(t, "250", FormatAmount(250, 0))
}
