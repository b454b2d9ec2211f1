package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DiagramEntry is one key/definition pair of a DiagramSet.
type DiagramEntry struct {
	Key        string `json:"key"`
	Definition string `json:"definition"`
}

// DiagramSet maps diagram keys to definitions, preserving insertion order so
// that diagrams come back in the order they appeared in the source document.
// The zero value is not usable; create one with NewDiagramSet.
type DiagramSet struct {
	entries []DiagramEntry
	index   map[string]int
}

// NewDiagramSet returns an empty set.
func NewDiagramSet() *DiagramSet {
	return &DiagramSet{index: make(map[string]int)}
}

// DiagramSetOf builds a set from alternating key, definition pairs.
// Empty definitions and duplicate keys are skipped.
func DiagramSetOf(pairs ...string) *DiagramSet {
	s := NewDiagramSet()
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Add(pairs[i], pairs[i+1])
	}
	return s
}

// Add inserts a new entry. It returns false and leaves the set untouched when
// the key is empty, already present, or the definition is blank.
func (s *DiagramSet) Add(key, definition string) bool {
	if key == "" || strings.TrimSpace(definition) == "" {
		return false
	}
	if _, exists := s.index[key]; exists {
		return false
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, DiagramEntry{Key: key, Definition: definition})
	return true
}

// Set inserts or replaces the definition for key, keeping its original position.
func (s *DiagramSet) Set(key, definition string) {
	if i, ok := s.index[key]; ok {
		s.entries[i].Definition = definition
		return
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, DiagramEntry{Key: key, Definition: definition})
}

// Get returns the definition stored under key.
func (s *DiagramSet) Get(key string) (string, bool) {
	i, ok := s.index[key]
	if !ok {
		return "", false
	}
	return s.entries[i].Definition, true
}

// Has reports whether key is present.
func (s *DiagramSet) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Len returns the number of entries.
func (s *DiagramSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Keys returns the keys in insertion order.
func (s *DiagramSet) Keys() []string {
	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the entries in insertion order.
func (s *DiagramSet) Entries() []DiagramEntry {
	out := make([]DiagramEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Clone returns an independent copy of the set.
func (s *DiagramSet) Clone() *DiagramSet {
	c := &DiagramSet{
		entries: make([]DiagramEntry, len(s.entries)),
		index:   make(map[string]int, len(s.index)),
	}
	copy(c.entries, s.entries)
	for k, v := range s.index {
		c.index[k] = v
	}
	return c
}

// Map returns the entries as a plain map. Order is lost.
func (s *DiagramSet) Map() map[string]string {
	m := make(map[string]string, len(s.entries))
	for _, e := range s.entries {
		m[e.Key] = e.Definition
	}
	return m
}

// MarshalJSON encodes the set as a JSON object with keys in insertion order.
func (s *DiagramSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Definition)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string values, keeping object order.
// Blank definitions are dropped; a repeated key keeps its first value.
func (s *DiagramSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("diagram set: expected JSON object, got %v", tok)
	}

	fresh := NewDiagramSet()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("diagram set: expected string key, got %v", keyTok)
		}
		var def string
		if err := dec.Decode(&def); err != nil {
			return fmt.Errorf("diagram set: value for %q: %w", key, err)
		}
		fresh.Add(key, def)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = *fresh
	return nil
}
