package onboarding

import (
	"fmt"
	"testing"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "8am", want: "08:00:00", ok: true},
		{in: "8 AM", want: "08:00:00", ok: true},
		{in: "12am", want: "00:00:00", ok: true},
		{in: "12pm", want: "12:00:00", ok: true},
		{in: "7:30 pm", want: "19:30:00", ok: true},
		{in: " 21:30 ", want: "21:30:00", ok: true},
		{in: "0:05", want: "00:05:00", ok: true},
		{in: "25:00", ok: false},
		{in: "13pm", ok: false},
		{in: "0am", ok: false},
		{in: "8:60am", ok: false},
		{in: "12:61", ok: false},
		{in: "noon", ok: false},
		{in: "", ok: false},
		{in: "user@example.com", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ParseTime(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseTimeRoundTrip(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		for _, minute := range []int{0, 1, 15, 30, 59} {
			canonical := fmt.Sprintf("%02d:%02d:00", hour, minute)

			h12 := hour % 12
			if h12 == 0 {
				h12 = 12
			}
			meridiem := "AM"
			if hour >= 12 {
				meridiem = "PM"
			}
			renders := []string{
				fmt.Sprintf("%d:%02d %s", h12, minute, meridiem),
				fmt.Sprintf("%02d:%02d", hour, minute),
				FormatDisplayTime(canonical),
			}
			for _, r := range renders {
				got, ok := ParseTime(r)
				if !ok || got != canonical {
					t.Fatalf("ParseTime(%q) = %q, %v; want %q", r, got, ok, canonical)
				}
			}
		}
	}
}
