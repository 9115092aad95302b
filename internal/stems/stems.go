// Package stems defines the canonical separation outputs and the
// single-letter code representation used in configuration and filenames.
package stems

import (
	"fmt"
	"strings"
)

// Stem identifies one isolated source track produced by the separation engine.
type Stem int

const (
	Vocals Stem = iota
	Drums
	Bass
	Other
)

// All lists every stem in canonical order.
func All() []Stem {
	return []Stem{Vocals, Drums, Bass, Other}
}

var stemNames = map[Stem]string{
	Vocals: "vocals",
	Drums:  "drums",
	Bass:   "bass",
	Other:  "other",
}

var stemCodes = map[Stem]string{
	Vocals: "V",
	Drums:  "D",
	Bass:   "B",
	Other:  "O",
}

var codeToStem = func() map[string]Stem {
	m := make(map[string]Stem, len(stemCodes))
	for stem, code := range stemCodes {
		m[code] = stem
	}
	return m
}()

// Name returns the engine-side stem file name (without extension).
func (s Stem) Name() string {
	return stemNames[s]
}

// Code returns the single-letter representation.
func (s Stem) Code() string {
	return stemCodes[s]
}

func (s Stem) String() string {
	return s.Name()
}

// Set is an ordered selection of stems to keep when mixing.
type Set []Stem

// ParseCodes converts single-letter codes into a Set, rejecting unknown codes.
func ParseCodes(codes []string) (Set, error) {
	seen := make(map[Stem]struct{}, len(codes))
	set := make(Set, 0, len(codes))
	for _, raw := range codes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		stem, ok := codeToStem[code]
		if !ok {
			return nil, fmt.Errorf("unknown stem code %q", raw)
		}
		if _, dup := seen[stem]; dup {
			continue
		}
		seen[stem] = struct{}{}
		set = append(set, stem)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no stems selected")
	}
	return set, nil
}

// ParseCompact parses a compact code string such as "DBO".
func ParseCompact(value string) (Set, error) {
	codes := make([]string, 0, len(value))
	for _, r := range strings.TrimSpace(value) {
		codes = append(codes, string(r))
	}
	return ParseCodes(codes)
}

// Compact renders the set as a compact code string such as "DBO".
func (s Set) Compact() string {
	var b strings.Builder
	for _, stem := range s {
		b.WriteString(stem.Code())
	}
	return b.String()
}

// Contains reports whether the set includes the given stem.
func (s Set) Contains(stem Stem) bool {
	for _, candidate := range s {
		if candidate == stem {
			return true
		}
	}
	return false
}
