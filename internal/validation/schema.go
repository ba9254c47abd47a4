package validation

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var builtinSchemas embed.FS

// ErrInvalidPayload indicates that payload does not satisfy its schema
var ErrInvalidPayload = errors.New("invalid payload")

type schemaKey struct {
	recordType string
	version    int
}

// Registry holds compiled payload schemas keyed by record type and schema version.
// Types without a registered schema only need to be a JSON object.
type Registry struct {
	schemas map[schemaKey]*jsonschema.Schema
	mu      sync.RWMutex
}

// NewRegistry creates registry preloaded with builtin schemas.
// Builtin files are named <type>.v<version>.json.
func NewRegistry() (*Registry, error) {
	r := &Registry{schemas: make(map[schemaKey]*jsonschema.Schema)}

	entries, err := fs.ReadDir(builtinSchemas, "schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to read builtin schemas: %w", err)
	}

	for _, entry := range entries {
		recordType, version, err := parseSchemaName(entry.Name())
		if err != nil {
			return nil, err
		}
		data, err := builtinSchemas.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}
		if err := r.Register(recordType, version, data); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register compiles schema and binds it to (recordType, version).
// An existing schema for the same key is replaced.
func (r *Registry) Register(recordType string, version int, schema []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return fmt.Errorf("failed to parse schema %s v%d: %w", recordType, version, err)
	}

	url := fmt.Sprintf("mem://schemas/%s.v%d.json", recordType, version)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return fmt.Errorf("failed to add schema %s v%d: %w", recordType, version, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("failed to compile schema %s v%d: %w", recordType, version, err)
	}

	r.mu.Lock()
	r.schemas[schemaKey{recordType: recordType, version: version}] = compiled
	r.mu.Unlock()

	return nil
}

// Validate checks payload against the schema registered for (recordType, version).
func (r *Registry) Validate(recordType string, version int, payload []byte) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	r.mu.RLock()
	schema, ok := r.schemas[schemaKey{recordType: recordType, version: version}]
	r.mu.RUnlock()

	if !ok {
		if _, isObject := inst.(map[string]any); !isObject {
			return fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPayload)
		}
		return nil
	}

	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Has reports whether a schema is registered for (recordType, version).
func (r *Registry) Has(recordType string, version int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[schemaKey{recordType: recordType, version: version}]
	return ok
}

func parseSchemaName(name string) (string, int, error) {
	base := strings.TrimSuffix(name, ".json")
	idx := strings.LastIndex(base, ".v")
	if idx <= 0 {
		return "", 0, fmt.Errorf("invalid schema file name %q", name)
	}
	version, err := strconv.Atoi(base[idx+2:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid schema version in %q: %w", name, err)
	}
	return base[:idx], version, nil
}
