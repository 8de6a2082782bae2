package models

import (
	"math"
	"testing"
)

func TestRecord_Float(t *testing.T) {
	tests := []struct {
		name    string
		cell    any
		want    float64
		wantOK  bool
		wantErr bool
	}{
		{"float", 12.5, 12.5, true, false},
		{"int", 3, 3, true, false},
		{"numeric text", " 7.25 ", 7.25, true, false},
		{"bool", true, 1, true, false},
		{"null", nil, 0, false, false},
		{"blank text", "  ", 0, false, false},
		{"NaN float", math.NaN(), 0, false, false},
		{"text", "abc", 0, false, true},
		{"inf text", "inf", 0, false, true},
		{"signed infinity text", "+Infinity", 0, false, true},
		{"nan text", "nan", 0, false, true},
		{"overflow text", "1e400", 0, false, true},
		{"inf float", math.Inf(-1), 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Record{"x": tt.cell}.Float("x")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}

func TestRecord_FloatMissingColumn(t *testing.T) {
	if _, ok, err := (Record{}).Float("x"); ok || err != nil {
		t.Errorf("Expected an absent cell, got ok=%v err=%v", ok, err)
	}
}
