package catalog

import (
	"strings"
	"testing"
)

func TestLookupSubstitution(t *testing.T) {
	c, err := New("en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := c.Lookup("en", "code_sent", map[string]string{"email": "x@ehu.lt"})
	if !strings.Contains(got, "x@ehu.lt") {
		t.Errorf("Lookup = %q, placeholder not substituted", got)
	}
	if strings.Contains(got, "{{") {
		t.Errorf("Lookup = %q, leftover placeholder", got)
	}
}

func TestLookupFallbacks(t *testing.T) {
	c, err := New("en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Unknown language falls back to the default table.
	if got, want := c.Lookup("xx", "cancelled", nil), c.Lookup("en", "cancelled", nil); got != want {
		t.Errorf("fallback lookup = %q, want %q", got, want)
	}

	// Unknown key renders as itself.
	if got := c.Lookup("en", "no_such_key", nil); got != "no_such_key" {
		t.Errorf("unknown key lookup = %q", got)
	}
}

func TestAllTablesCoverEnglishKeys(t *testing.T) {
	c, err := New("en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	en := c.tables["en"]
	for _, lang := range c.Languages() {
		for key := range en {
			if _, ok := c.tables[lang][key]; !ok {
				t.Errorf("table %s missing key %q", lang, key)
			}
		}
	}
}

func TestLanguages(t *testing.T) {
	c, err := New("en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	langs := c.Languages()
	if len(langs) < 3 {
		t.Fatalf("languages = %v, want at least en, lt, ru", langs)
	}
	for _, lang := range langs {
		if name := c.LanguageName(lang); name == "" || name == lang {
			t.Errorf("language %s has no display name", lang)
		}
	}
}

func TestNewRejectsUnknownDefault(t *testing.T) {
	if _, err := New("xx"); err == nil {
		t.Error("expected error for unknown default language")
	}
}
