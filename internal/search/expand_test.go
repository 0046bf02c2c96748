package search

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestExpandResolvesAbbreviationRegardlessOfCasingAndWhitespace(t *testing.T) {
	table := NewAbbreviationTable()
	for _, raw := range []string{"jjk", "JJK", "  Jjk\t", "\njJk "} {
		if got := table.Expand(raw); got != "jujutsu kaisen" {
			t.Fatalf("expand(%q) = %q, want %q", raw, got, "jujutsu kaisen")
		}
	}
}

func TestExpandCoversEveryDefaultEntry(t *testing.T) {
	table := NewAbbreviationTable()
	for short, full := range defaultAbbreviations {
		if got := table.Expand("  " + short + " "); got != full {
			t.Fatalf("expand(%q) = %q, want %q", short, got, full)
		}
	}
}

func TestExpandReturnsNormalizedInputOnMiss(t *testing.T) {
	table := NewAbbreviationTable()
	if got := table.Expand("  Cowboy Bebop "); got != "cowboy bebop" {
		t.Fatalf("expected normalized query, got %q", got)
	}
}

func TestExpandNormalizesFullWidthInput(t *testing.T) {
	table := NewAbbreviationTable()
	if got := table.Expand("ＪＪＫ"); got != "jujutsu kaisen" {
		t.Fatalf("expected full-width input to resolve, got %q", got)
	}
}

func TestAddStoresLowerCasedEntries(t *testing.T) {
	table := NewAbbreviationTable()
	if !table.Add(" CSM ", "Chainsaw Man") {
		t.Fatal("expected entry to be added")
	}
	if got := table.Expand("csm"); got != "chainsaw man" {
		t.Fatalf("expected chainsaw man, got %q", got)
	}
	if table.Add("  ", "anything") {
		t.Fatal("blank short form must be rejected")
	}
}

func TestNilTableStillNormalizes(t *testing.T) {
	var table *AbbreviationTable
	if got := table.Expand(" JJK "); got != "jjk" {
		t.Fatalf("expected plain normalization, got %q", got)
	}
}

func TestEntriesAreSorted(t *testing.T) {
	entries := NewAbbreviationTable().Entries()
	if len(entries) != len(defaultAbbreviations) {
		t.Fatalf("expected %d entries, got %d", len(defaultAbbreviations), len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Short > entries[i].Short {
			t.Fatalf("entries not sorted at %d: %q > %q", i, entries[i-1].Short, entries[i].Short)
		}
	}
}

func TestLoadAbbreviationsFileMergesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abbreviations.yaml")
	content := "abbreviations:\n  CSM: Chainsaw Man\n  jjk: Jujutsu Kaisen 0\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	table := NewAbbreviationTable()
	added, err := table.LoadAbbreviationsFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 entries, got %d", added)
	}
	if got := table.Expand("csm"); got != "chainsaw man" {
		t.Fatalf("unexpected expansion %q", got)
	}
	if got := table.Expand("jjk"); got != "jujutsu kaisen 0" {
		t.Fatalf("file entries must override defaults, got %q", got)
	}
}

func TestLoadAbbreviationsFileRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("abbreviations: [unterminated"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := NewAbbreviationTable().LoadAbbreviationsFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConcurrentExpandAndAdd(t *testing.T) {
	table := NewAbbreviationTable()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = table.Expand("aot")
		}()
		go func() {
			defer wg.Done()
			table.Add("vs", "vinland saga")
		}()
	}
	wg.Wait()
	if got := table.Expand("vs"); got != "vinland saga" {
		t.Fatalf("unexpected expansion %q", got)
	}
}
