package stems_test

import (
	"testing"

	"stemd/internal/stems"
)

func TestParseCodes(t *testing.T) {
	cases := []struct {
		name    string
		codes   []string
		want    string
		wantErr bool
	}{
		{"canonical", []string{"D", "B", "O"}, "DBO", false},
		{"lowercase and spaces", []string{" v ", "d"}, "VD", false},
		{"duplicates collapse", []string{"D", "D", "B"}, "DB", false},
		{"unknown code", []string{"X"}, "", true},
		{"empty selection", []string{"", " "}, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := stems.ParseCodes(tc.codes)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %v", tc.codes)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCodes(%v) failed: %v", tc.codes, err)
			}
			if got := set.Compact(); got != tc.want {
				t.Fatalf("Compact() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseCompactRoundTrip(t *testing.T) {
	set, err := stems.ParseCompact("VDBO")
	if err != nil {
		t.Fatalf("ParseCompact failed: %v", err)
	}
	if len(set) != 4 {
		t.Fatalf("expected 4 stems, got %d", len(set))
	}
	if set.Compact() != "VDBO" {
		t.Fatalf("round trip mismatch: %q", set.Compact())
	}
}

func TestNamesAndCodes(t *testing.T) {
	if stems.Vocals.Name() != "vocals" || stems.Vocals.Code() != "V" {
		t.Fatalf("vocals mapping wrong: %q %q", stems.Vocals.Name(), stems.Vocals.Code())
	}
	if stems.Other.Name() != "other" || stems.Other.Code() != "O" {
		t.Fatalf("other mapping wrong: %q %q", stems.Other.Name(), stems.Other.Code())
	}
	if !stems.Set(stems.All()).Contains(stems.Bass) {
		t.Fatal("expected full set to contain bass")
	}
}
