package config

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "unset uses fallback", raw: "", want: 2 * time.Hour},
		{name: "bare minutes", raw: "90", want: 90 * time.Minute},
		{name: "go syntax", raw: "12h", want: 12 * time.Hour},
		{name: "negative", raw: "-5m", wantErr: true},
		{name: "zero minutes", raw: "0", wantErr: true},
		{name: "garbage", raw: "soon", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tc.raw)
			got, err := Duration("TEST_DURATION", 2*time.Hour)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestInt(t *testing.T) {
	t.Setenv("TEST_INT", "")
	if n, err := Int("TEST_INT", 3); err != nil || n != 3 {
		t.Fatalf("expected fallback 3, got %d (%v)", n, err)
	}
	t.Setenv("TEST_INT", "7")
	if n, err := Int("TEST_INT", 3); err != nil || n != 7 {
		t.Fatalf("expected 7, got %d (%v)", n, err)
	}
	t.Setenv("TEST_INT", "x")
	if _, err := Int("TEST_INT", 3); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
}

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected out-of-range port to fail")
	}
	t.Setenv("TEST_PORT", "")
	if p, err := Port("TEST_PORT", "8080"); err != nil || p != "8080" {
		t.Fatalf("expected fallback port, got %q (%v)", p, err)
	}
}

func TestBoolAndLocation(t *testing.T) {
	t.Setenv("TEST_BOOL", "off")
	if Bool("TEST_BOOL", true) {
		t.Fatal("expected off to parse as false")
	}
	t.Setenv("TEST_BOOL", "maybe")
	if !Bool("TEST_BOOL", true) {
		t.Fatal("expected unknown value to use fallback")
	}
	t.Setenv("TEST_TZ", "UTC")
	loc, err := Location("TEST_TZ", "America/Argentina/Buenos_Aires")
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("expected UTC, got %v (%v)", loc, err)
	}
	t.Setenv("TEST_TZ", "Mars/Olympus")
	if _, err := Location("TEST_TZ", "UTC"); err == nil {
		t.Fatal("expected unknown zone to fail")
	}
}
