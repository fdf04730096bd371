package align

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AliasTable records known phonetic confusions between recognised and
// expected words: accent patterns that make an STT model consistently hear
// one word as an unrelated-looking other ("three" for "tree", "de" for
// "the"). A table hit is always accepted as a match regardless of edit
// distance.
//
// The table is data, not logic — it lives in a YAML file next to the server
// config so it can be tuned per deployment without touching the aligner.
// Lookups are bidirectional: the table matches whether the confusion was
// recorded under the recognised word or under the expected one.
//
// An AliasTable is read-only after construction and safe for concurrent use.
// The zero value (nil) matches nothing.
type AliasTable struct {
	aliases map[string]map[string]struct{}
}

// NewAliasTable builds a table from a map of word → acceptable confusions.
// Keys and values are normalised with Normalize before storage.
func NewAliasTable(entries map[string][]string) *AliasTable {
	t := &AliasTable{aliases: make(map[string]map[string]struct{}, len(entries))}
	for word, others := range entries {
		key := Normalize(word)
		if key == "" {
			continue
		}
		set, ok := t.aliases[key]
		if !ok {
			set = make(map[string]struct{}, len(others))
			t.aliases[key] = set
		}
		for _, other := range others {
			if o := Normalize(other); o != "" {
				set[o] = struct{}{}
			}
		}
	}
	return t
}

// LoadAliasFile reads an alias table from a YAML file mapping each word to
// the list of words it may be confused with.
func LoadAliasFile(path string) (*AliasTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("align: read alias file %q: %w", path, err)
	}
	var entries map[string][]string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("align: parse alias file %q: %w", path, err)
	}
	return NewAliasTable(entries), nil
}

// Match reports whether recognized and expected form a known confusion
// pair, in either direction. Both inputs must already be normalised.
// Safe to call on a nil table.
func (t *AliasTable) Match(recognized, expected string) bool {
	if t == nil {
		return false
	}
	if set, ok := t.aliases[recognized]; ok {
		if _, ok := set[expected]; ok {
			return true
		}
	}
	if set, ok := t.aliases[expected]; ok {
		if _, ok := set[recognized]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of distinct keys in the table.
func (t *AliasTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.aliases)
}
