// Package commands holds the static mapping from human readable command
// names to microcontroller payloads.
package commands

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"ammcon/protocol"
)

//go:embed commands.yaml
var defaultVocabulary []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Table is an immutable command vocabulary. It is safe for concurrent use.
type Table struct {
	cmds map[string][]byte
}

// Default returns the built-in vocabulary. It is parsed on first use and
// shared afterwards.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Parse(defaultVocabulary)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("commands: embedded vocabulary: %v", defaultErr))
	}
	return defaultTable
}

// Load reads a vocabulary file in the same format as the embedded one.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML mapping of name to byte list.
func Parse(data []byte) (*Table, error) {
	var raw map[string][]int
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("vocabulary is empty")
	}

	t := &Table{cmds: make(map[string][]byte, len(raw))}
	for name, values := range raw {
		if name == "" {
			return nil, errors.New("vocabulary contains an empty command name")
		}
		if len(values) == 0 || len(values) > protocol.MaxPayloadSize {
			return nil, fmt.Errorf("command %q: payload must be 1-%d bytes, got %d",
				name, protocol.MaxPayloadSize, len(values))
		}
		payload := make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 0xFF {
				return nil, fmt.Errorf("command %q: byte %d out of range: %d", name, i, v)
			}
			payload[i] = byte(v)
		}
		t.cmds[name] = payload
	}
	return t, nil
}

// Lookup returns a copy of the payload registered for name.
func (t *Table) Lookup(name string) ([]byte, bool) {
	payload, ok := t.cmds[name]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true
}

// Names returns all command names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.cmds))
	for name := range t.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of commands.
func (t *Table) Len() int {
	return len(t.cmds)
}
