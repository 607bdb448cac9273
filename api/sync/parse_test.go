package sync

import (
	"testing"
	"time"
)

func TestParseAmount_EmptySentinels(t *testing.T) {
	for _, raw := range []string{"", "  ", "N/A", "n/a", "#N/A", "na", "NULL", "nil", "-", "none", " None "} {
		if got := ParseAmount(raw); got != nil {
			t.Errorf("ParseAmount(%q) = %s, want nil", raw, got)
		}
	}
}

func TestParseAmount_ZeroIsNotEmpty(t *testing.T) {
	got := ParseAmount("0")
	if got == nil {
		t.Fatal("ParseAmount(\"0\") = nil, want zero value")
	}
	if !got.IsZero() {
		t.Errorf("ParseAmount(\"0\") = %s, want 0", got)
	}
	got = ParseAmount("0.00")
	if got == nil || !got.IsZero() {
		t.Errorf("ParseAmount(\"0.00\") = %v, want 0", got)
	}
}

func TestParseAmount_CurrencyAndSeparators(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"12500.50", "12500.5"},
		{"12,500.50", "12500.5"},
		{"ZMW 12,500.50", "12500.5"},
		{"K1,000", "1000"},
		{" 250 ", "250"},
		{"-75.25", "-75.25"},
	}
	for _, c := range cases {
		got := ParseAmount(c.raw)
		if got == nil {
			t.Errorf("ParseAmount(%q) = nil, want %s", c.raw, c.want)
			continue
		}
		if got.String() != c.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", c.raw, got, c.want)
		}
	}
}

func TestParseAmount_Garbage(t *testing.T) {
	for _, raw := range []string{"abc", "12.5.6", "amount pending"} {
		if got := ParseAmount(raw); got != nil {
			t.Errorf("ParseAmount(%q) = %s, want nil", raw, got)
		}
	}
}

func TestParseInteger(t *testing.T) {
	if got := ParseInteger("45"); got == nil || *got != 45 {
		t.Errorf("ParseInteger(\"45\") = %v, want 45", got)
	}
	if got := ParseInteger("0"); got == nil || *got != 0 {
		t.Errorf("ParseInteger(\"0\") = %v, want 0", got)
	}
	if got := ParseInteger(" 1,200 "); got == nil || *got != 1200 {
		t.Errorf("ParseInteger(\" 1,200 \") = %v, want 1200", got)
	}
	for _, raw := range []string{"", "N/A", "12.5", "many"} {
		if got := ParseInteger(raw); got != nil {
			t.Errorf("ParseInteger(%q) = %d, want nil", raw, *got)
		}
	}
}

func TestParseDate_Layouts(t *testing.T) {
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2025-03-14", "14-03-2025", "14/03/2025", "2025/03/14", "14 Mar 2025"} {
		got := ParseDate(raw)
		if got == nil {
			t.Errorf("ParseDate(%q) = nil, want %s", raw, want.Format("2006-01-02"))
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestParseDate_YearOutsideWindow(t *testing.T) {
	// Spreadsheet serial corruption shows up as absurd years.
	for _, raw := range []string{"1899-12-31", "2101-01-01", "0001-01-01"} {
		if got := ParseDate(raw); got != nil {
			t.Errorf("ParseDate(%q) = %s, want nil", raw, got)
		}
	}
}

func TestParseDate_EmptyAndGarbage(t *testing.T) {
	for _, raw := range []string{"", "N/A", "-", "not a date", "32/13/2025"} {
		if got := ParseDate(raw); got != nil {
			t.Errorf("ParseDate(%q) = %s, want nil", raw, got)
		}
	}
}
