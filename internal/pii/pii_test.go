package pii

import "testing"

func TestScrubRedactsEachCategory(t *testing.T) {
	s := New(DefaultConfig())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"email", "reach me at jane.doe@example.com please", "reach me at [REDACTED_EMAIL] please"},
		{"ssn", "my ssn is 123-45-6789 ok", "my ssn is [REDACTED_SSN] ok"},
		{"phone", "call 555-123-4567 today", "call [REDACTED_PHONE] today"},
		{"credit card", "card 4111 1111 1111 1111 exp", "card [REDACTED_CC] exp"},
		{"clean", "no sensitive data here", "no sensitive data here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Scrub(tt.in)
			if got != tt.want {
				t.Errorf("Scrub(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestScrubIsIdempotent(t *testing.T) {
	s := New(DefaultConfig())
	once := s.Scrub("email me at a@b.com or call 555-123-4567")
	twice := s.Scrub(once)
	if once != twice {
		t.Errorf("scrubbing is not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestScrubEmptyString(t *testing.T) {
	s := New(DefaultConfig())
	if got := s.Scrub(""); got != "" {
		t.Errorf("Scrub(\"\") = %q, want empty", got)
	}
}

func TestScrubHonorsDisabledCategories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScrubEmail = false
	s := New(cfg)

	got := s.Scrub("contact a@b.com")
	if got != "contact a@b.com" {
		t.Errorf("expected email untouched when disabled, got %q", got)
	}
}

func TestScrubCustomMask(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedactionMask = "<<%s>>"
	s := New(cfg)

	got := s.Scrub("ssn 123-45-6789")
	if got != "ssn <<SSN>>" {
		t.Errorf("expected custom mask applied, got %q", got)
	}
}
