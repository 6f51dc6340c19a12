package phone

import (
	"testing"
)

func TestPlan_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "international", raw: "+254712345678", want: "254712345678"},
		{name: "international spaced", raw: "+254 712 345 678", want: "254712345678"},
		{name: "country code", raw: "254712345678", want: "254712345678"},
		{name: "double zero prefix", raw: "00254712345678", want: "254712345678"},
		{name: "national", raw: "0712345678", want: "254712345678"},
		{name: "national dashed", raw: "0712-345-678", want: "254712345678"},
		{name: "national 01 range", raw: "0112345678", want: "254112345678"},
		{name: "bare nsn", raw: "712345678", want: "254712345678"},
		{name: "parenthesized", raw: "(0712) 345.678", want: "254712345678"},
		{name: "empty", raw: "", wantErr: ErrUnresolvable},
		{name: "letters", raw: "07123ABCDE", wantErr: ErrUnresolvable},
		{name: "too short", raw: "07123", wantErr: ErrUnresolvable},
		{name: "too long", raw: "2547123456789", wantErr: ErrUnresolvable},
		{name: "other country", raw: "+255712345678", wantErr: ErrUnresolvable},
		{name: "landline leading digit", raw: "0202345678", wantErr: ErrUnresolvable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KenyaPlan.Normalize(tt.raw)
			if err != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewPlan(t *testing.T) {
	p := NewPlan("256")
	got, err := p.Normalize("0712345678")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got != "256712345678" {
		t.Errorf("Normalize() = %v, want 256712345678", got)
	}
	if NewPlan("").CountryCode != "254" {
		t.Errorf("NewPlan(\"\") must default to the Kenyan country code")
	}
}

func TestSuffix(t *testing.T) {
	if got := Suffix("254712345678"); got != "712345678" {
		t.Errorf("Suffix() = %v, want 712345678", got)
	}
	if got := Suffix("12345"); got != "12345" {
		t.Errorf("Suffix() = %v, want 12345", got)
	}
}
