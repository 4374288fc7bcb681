package application

import (
	"testing"

	"cloud.google.com/go/civil"
)

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw   string
		want  civil.Time
		valid bool
	}{
		{raw: "09:30", want: civil.Time{Hour: 9, Minute: 30}, valid: true},
		{raw: " 18:05:07 ", want: civil.Time{Hour: 18, Minute: 5, Second: 7}, valid: true},
		{raw: "00:00:00", want: civil.Time{}, valid: true},
		{raw: "9:30"},
		{raw: "09:3"},
		{raw: "9:30:00"},
		{raw: "09:30:15.250"},
		{raw: "24:00"},
		{raw: "09h30"},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()

			vErr := &ValidationError{}
			got, ok := parseClock(tc.raw, vErr)
			if ok != tc.valid {
				t.Fatalf("parseClock(%q) ok = %v, want %v", tc.raw, ok, tc.valid)
			}
			if tc.valid && got != tc.want {
				t.Fatalf("parseClock(%q) = %v, want %v", tc.raw, got, tc.want)
			}
			if !tc.valid && vErr.FieldErrors["scheduled_time"] == "" {
				t.Fatalf("parseClock(%q) recorded no field error", tc.raw)
			}
		})
	}
}

func TestParseClockBlankIsNotAnError(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{}
	if _, ok := parseClock("  ", vErr); ok || vErr.HasErrors() {
		t.Fatalf("blank input: ok=%v errors=%v", ok, vErr.FieldErrors)
	}
}
