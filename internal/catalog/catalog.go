// Package catalog resolves user-facing strings from per-language message
// tables. Transition handlers only ever deal in symbolic keys plus
// substitution values; the rendered text never feeds back into business
// logic.
package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed messages/*.json
var messagesFS embed.FS

// Catalog holds the loaded message tables.
type Catalog struct {
	defaultLang string
	tables      map[string]map[string]string
}

// New loads all embedded message tables. defaultLang must name one of them.
func New(defaultLang string) (*Catalog, error) {
	entries, err := fs.ReadDir(messagesFS, "messages")
	if err != nil {
		return nil, fmt.Errorf("read message tables: %w", err)
	}

	tables := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		lang := strings.TrimSuffix(entry.Name(), ".json")
		data, err := messagesFS.ReadFile(path.Join("messages", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read message table %s: %w", entry.Name(), err)
		}
		var table map[string]string
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse message table %s: %w", entry.Name(), err)
		}
		tables[lang] = table
	}

	if _, ok := tables[defaultLang]; !ok {
		return nil, fmt.Errorf("no message table for default language %q", defaultLang)
	}

	return &Catalog{defaultLang: defaultLang, tables: tables}, nil
}

// Lookup resolves a message key for the given language, substituting
// {{name}} placeholders. Unknown languages fall back to the default table;
// unknown keys render as the key itself so a missing entry is visible
// rather than silent.
func (c *Catalog) Lookup(lang, key string, subs map[string]string) string {
	table, ok := c.tables[lang]
	if !ok {
		table = c.tables[c.defaultLang]
	}
	msg, ok := table[key]
	if !ok {
		if msg, ok = c.tables[c.defaultLang][key]; !ok {
			return key
		}
	}
	for name, value := range subs {
		msg = strings.ReplaceAll(msg, "{{"+name+"}}", value)
	}
	return msg
}

// Languages returns the available language tags in stable order.
func (c *Catalog) Languages() []string {
	langs := make([]string, 0, len(c.tables))
	for lang := range c.tables {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// LanguageName returns the self-describing display name of a language,
// used as its selection button label.
func (c *Catalog) LanguageName(lang string) string {
	if table, ok := c.tables[lang]; ok {
		if name, ok := table["language_name"]; ok {
			return name
		}
	}
	return lang
}
