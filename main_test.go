package main

import (
	"testing"
	"time"
)

func TestParseRunDate(t *testing.T) {
	cases := []struct {
		name    string
		value   string
		apiKey  bool
		wantErr bool
	}{
		{"any day with key", "2023-06-15", true, false},
		{"first of month without key", "2023-06-01", false, false},
		{"mid month without key", "2023-06-15", false, true},
		{"future date", "2099-01-01", true, true},
		{"malformed", "June 1st", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			day, err := parseRunDate(tc.value, tc.apiKey)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRunDate(%q): %v", tc.value, err)
			}
			if got := day.Format("2006-01-02"); got != tc.value {
				t.Errorf("got %s, want %s", got, tc.value)
			}
		})
	}
}

func TestParseRunDateDefaults(t *testing.T) {
	day, err := parseRunDate("", false)
	if err != nil {
		t.Fatalf("default without key: %v", err)
	}
	if day.Day() != 1 {
		t.Errorf("anonymous default should be a first of month, got %s", day)
	}
	if !day.Before(time.Now().UTC()) {
		t.Errorf("default day must be in the past, got %s", day)
	}
}
