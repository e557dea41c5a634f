package sidecar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// descriptorSchema validates sidecar descriptor files before anything is
// spawned from them.
const descriptorSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["name", "command"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "pattern": "^[a-zA-Z0-9._-]+$"},
		"command": {"type": "string", "minLength": 1},
		"args": {"type": "array", "items": {"type": "string"}},
		"env": {"type": "object", "additionalProperties": {"type": "string"}},
		"cwd": {"type": "string"},
		"hello_timeout_ms": {"type": "integer", "minimum": 1},
		"event_buffer": {"type": "integer", "minimum": 1}
	},
	"additionalProperties": false
}`

// Descriptor is one discovered sidecar backend definition.
type Descriptor struct {
	Name           string            `json:"name"`
	Command        string            `json:"command"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	Cwd            string            `json:"cwd,omitempty"`
	HelloTimeoutMS int               `json:"hello_timeout_ms,omitempty"`
	EventBuffer    int               `json:"event_buffer,omitempty"`
}

// Spec converts the descriptor into a spawn spec.
func (d Descriptor) Spec() Spec {
	return Spec{
		Command:      d.Command,
		Args:         d.Args,
		Env:          d.Env,
		Cwd:          d.Cwd,
		HelloTimeout: time.Duration(d.HelloTimeoutMS) * time.Millisecond,
		EventBuffer:  d.EventBuffer,
	}
}

// RegistryKey is the name the descriptor registers under.
func (d Descriptor) RegistryKey() string {
	return "sidecar:" + d.Name
}

func compileDescriptorSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(descriptorSchema))
	if err != nil {
		return nil, fmt.Errorf("sidecar: parse descriptor schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("descriptor.json", doc); err != nil {
		return nil, fmt.Errorf("sidecar: add descriptor schema: %w", err)
	}
	schema, err := compiler.Compile("descriptor.json")
	if err != nil {
		return nil, fmt.Errorf("sidecar: compile descriptor schema: %w", err)
	}
	return schema, nil
}

// Discover reads every *.json descriptor in a directory, validates each
// against the schema, and returns them sorted by name. A missing
// directory yields an empty list; an invalid descriptor is an error
// naming the file.
func Discover(dir string) ([]Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sidecar: read descriptor directory: %w", err)
	}

	schema, err := compileDescriptorSchema()
	if err != nil {
		return nil, err
	}

	var out []Descriptor
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("sidecar: read descriptor %s: %w", path, err)
		}

		inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("sidecar: descriptor %s is not JSON: %w", path, err)
		}
		if err := schema.Validate(inst); err != nil {
			return nil, fmt.Errorf("sidecar: descriptor %s is invalid: %w", path, err)
		}

		var d Descriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("sidecar: decode descriptor %s: %w", path, err)
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
