// Package mapping keeps the correspondence between the feature names handed
// to the tool chain and the taxonomic names they were derived from.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var disallowed = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Sanitize strips every character outside [A-Za-z0-9_].
func Sanitize(name string) string {
	return disallowed.ReplaceAllString(name, "")
}

// Usable reports whether a feature name can become a biomarker. Names of a
// single character or starting with an underscore are placeholder taxa.
func Usable(name string) bool {
	return utf8.RuneCountInString(name) > 1 && !strings.HasPrefix(name, "_")
}

// Mapping is the bidirectional name table. It is immutable once built.
type Mapping struct {
	cleanedToOriginal map[string]string
	originalToCleaned map[string]string
}

type wireMapping struct {
	CleanedToOriginal map[string]string `json:"cleaned_to_original"`
	OriginalToCleaned map[string]string `json:"original_to_cleaned"`
}

// Build sanitizes every original name. When several originals share a
// cleaned name, the last one is what the cleaned name translates back to;
// all of them stay reachable through Originals.
func Build(originals []string) *Mapping {
	m := &Mapping{
		cleanedToOriginal: make(map[string]string, len(originals)),
		originalToCleaned: make(map[string]string, len(originals)),
	}
	for _, o := range originals {
		c := Sanitize(o)
		m.originalToCleaned[o] = c
		m.cleanedToOriginal[c] = o
	}
	return m
}

// Original translates a cleaned name back. Unknown names pass through.
func (m *Mapping) Original(cleaned string) string {
	if o, ok := m.cleanedToOriginal[cleaned]; ok {
		return o
	}
	return cleaned
}

// Cleaned returns the cleaned form of an original name.
func (m *Mapping) Cleaned(original string) (string, bool) {
	c, ok := m.originalToCleaned[original]
	return c, ok
}

// Originals returns every original name that sanitizes to cleaned, sorted.
func (m *Mapping) Originals(cleaned string) []string {
	var out []string
	for o, c := range m.originalToCleaned {
		if c == cleaned {
			out = append(out, o)
		}
	}
	sort.Strings(out)
	return out
}

// CleanedNames returns the distinct cleaned names, sorted.
func (m *Mapping) CleanedNames() []string {
	out := make([]string, 0, len(m.cleanedToOriginal))
	for c := range m.cleanedToOriginal {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (m *Mapping) Len() int {
	return len(m.cleanedToOriginal)
}

func (m *Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wireMapping{
		CleanedToOriginal: m.cleanedToOriginal,
		OriginalToCleaned: m.originalToCleaned,
	}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (m *Mapping) UnmarshalJSON(data []byte) error {
	var w wireMapping
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.CleanedToOriginal == nil || w.OriginalToCleaned == nil {
		return fmt.Errorf("mapping must contain cleaned_to_original and original_to_cleaned")
	}
	m.cleanedToOriginal = w.CleanedToOriginal
	m.originalToCleaned = w.OriginalToCleaned
	return nil
}

// Save writes the mapping as JSON.
func Save(path string, m *Mapping) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write mapping: %w", err)
	}
	return nil
}

// Load reads a mapping written by Save.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping: %w", err)
	}
	m := &Mapping{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to decode mapping %s: %w", path, err)
	}
	return m, nil
}
