// Package schema holds the JSON schemas that model output and final
// summaries are validated against, and the typed SummaryResult they decode into.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Name identifies an embedded schema.
type Name string

const (
	// SummaryResult validates the final, metadata-bearing summary.
	SummaryResult Name = "summary_result"
	// ModelOutput validates a single-call or reduction response.
	ModelOutput Name = "model_output"
	// PartialExtraction validates one map-phase chunk response.
	PartialExtraction Name = "partial_extraction"
)

// Schema is one embedded JSON schema document.
type Schema struct {
	Name Name
	Raw  json.RawMessage

	compiled *jsonschema.Schema
}

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("decode %s: %w", s.Name, err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("does not match %s schema: %w", s.Name, err)
	}
	return nil
}

var (
	loadOnce sync.Once
	loaded   map[Name]*Schema
	loadErr  error
)

func load() {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		loadErr = fmt.Errorf("read embedded schemas: %w", err)
		return
	}
	loaded = make(map[Name]*Schema, len(entries))
	for _, e := range entries {
		file := "schemas/" + e.Name()
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			loadErr = fmt.Errorf("read schema %s: %w", file, err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(e.Name(), bytes.NewReader(raw)); err != nil {
			loadErr = fmt.Errorf("load schema %s: %w", file, err)
			return
		}
		compiled, err := compiler.Compile(e.Name())
		if err != nil {
			loadErr = fmt.Errorf("compile schema %s: %w", file, err)
			return
		}
		name := Name(strings.TrimSuffix(e.Name(), ".json"))
		loaded[name] = &Schema{Name: name, Raw: raw, compiled: compiled}
	}
}

// Get returns a compiled schema by name.
func Get(name Name) (*Schema, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	s, ok := loaded[name]
	if !ok {
		return nil, fmt.Errorf("schema not found: %s", name)
	}
	return s, nil
}

// MustGet is Get for schemas known to be embedded.
func MustGet(name Name) *Schema {
	s, err := Get(name)
	if err != nil {
		panic(err)
	}
	return s
}

// All returns every embedded schema sorted by name.
func All() ([]*Schema, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]*Schema, 0, len(loaded))
	for _, s := range loaded {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
