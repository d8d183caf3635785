package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"relgraph/src/integrity"
	"relgraph/src/pathquery"
	"relgraph/src/relation"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Schema is the content of a schema file:
//
//	components: [Name, Stats]
//	relationships:
//	  - "Owns: Owner -< Item"
//	queries:
//	  Inventory: |
//	    items = match (o: Owner) -[Owns]-> (i: Item)
type Schema struct {
	Components    []string          `yaml:"components"`
	Relationships []string          `yaml:"relationships"`
	Queries       map[string]string `yaml:"queries"`
}

// LoadSchemaFile reads and parses a YAML schema file.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading schema file %s: %w", path, err)
	}
	return ParseSchema(data)
}

// ParseSchema parses YAML schema source. Unknown keys are rejected; an
// empty document is an empty schema.
func ParseSchema(data []byte) (*Schema, error) {
	var schema Schema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&schema); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing schema: %w", err)
	}
	return &schema, nil
}

// Apply registers the schema's components and relationships. Every bad
// entry is reported; the good ones are still registered.
func (s *Schema) Apply(registry *integrity.Registry) error {
	var errs error
	for _, name := range s.Components {
		if err := registry.RegisterComponent(relation.ComponentID(name)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	for _, src := range s.Relationships {
		d, err := relation.ParseDeclaration(src)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := registry.Register(d); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// CompileQueries compiles every query set against registry, keyed by set
// name.
func (s *Schema) CompileQueries(registry *integrity.Registry) (map[string]*pathquery.QuerySet, error) {
	names := make([]string, 0, len(s.Queries))
	for name := range s.Queries {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make(map[string]*pathquery.QuerySet, len(names))
	var errs error
	for _, name := range names {
		set, err := pathquery.Compile(registry, name, s.Queries[name])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sets[name] = set
	}
	if errs != nil {
		return nil, errs
	}
	return sets, nil
}
