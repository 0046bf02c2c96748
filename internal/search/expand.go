package search

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

var defaultAbbreviations = map[string]string{
	"jjk":        "jujutsu kaisen",
	"aot":        "attack on titan",
	"sao":        "sword art online",
	"bnha":       "my hero academia",
	"mha":        "my hero academia",
	"fmab":       "fullmetal alchemist brotherhood",
	"op":         "one piece",
	"db":         "dragon ball",
	"nge":        "neon genesis evangelion",
	"opm":        "one punch man",
	"naruto":     "naruto",
	"bleach":     "bleach",
	"ds":         "demon slayer",
	"kny":        "demon slayer",
	"hxh":        "hunter x hunter",
	"snk":        "attack on titan",
	"fate":       "fate/stay night",
	"fsn":        "fate/stay night",
	"code geass": "code geass",
	"eva":        "neon genesis evangelion",
}

// normalizeText applies NFKC, trims and lower-cases. Caser values are not
// safe for concurrent use, so one is built per call.
func normalizeText(raw string) string {
	value := strings.TrimSpace(norm.NFKC.String(raw))
	if value == "" {
		return ""
	}
	return cases.Lower(language.Und).String(value)
}

// AbbreviationTable maps short forms to full titles. It is shared
// process-wide, mutable at runtime and never persisted.
type AbbreviationTable struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewAbbreviationTable() *AbbreviationTable {
	table := &AbbreviationTable{entries: make(map[string]string, len(defaultAbbreviations))}
	for short, full := range defaultAbbreviations {
		table.entries[short] = full
	}
	return table
}

// Add registers or replaces a mapping. Both sides are stored lower-cased.
func (t *AbbreviationTable) Add(short, full string) bool {
	key := normalizeText(short)
	value := normalizeText(full)
	if key == "" || value == "" {
		return false
	}
	t.mu.Lock()
	t.entries[key] = value
	t.mu.Unlock()
	return true
}

// Expand returns the mapped phrase for raw, or raw trimmed and lower-cased.
func (t *AbbreviationTable) Expand(raw string) string {
	key := normalizeText(raw)
	if t == nil {
		return key
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if full, ok := t.entries[key]; ok {
		return full
	}
	return key
}

type Abbreviation struct {
	Short string `json:"short" yaml:"short"`
	Full  string `json:"full" yaml:"full"`
}

// Entries lists the table sorted by short form.
func (t *AbbreviationTable) Entries() []Abbreviation {
	t.mu.RLock()
	items := make([]Abbreviation, 0, len(t.entries))
	for short, full := range t.entries {
		items = append(items, Abbreviation{Short: short, Full: full})
	}
	t.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		return items[i].Short < items[j].Short
	})
	return items
}

type abbreviationFile struct {
	Abbreviations map[string]string `yaml:"abbreviations"`
}

// LoadAbbreviationsFile merges the mappings of a YAML file of the form
//
//	abbreviations:
//	  jjk: jujutsu kaisen
//
// into the table and returns how many entries were added.
func (t *AbbreviationTable) LoadAbbreviationsFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read abbreviations: %w", err)
	}
	var file abbreviationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse abbreviations: %w", err)
	}
	added := 0
	for short, full := range file.Abbreviations {
		if t.Add(short, full) {
			added++
		}
	}
	return added, nil
}
