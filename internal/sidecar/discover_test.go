package sidecar

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeDescriptor(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
}

func TestDiscoverValidDescriptors(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "node.json", `{
		"name": "node",
		"command": "node",
		"args": ["sidecar.js"],
		"env": {"NODE_ENV": "production"},
		"cwd": "/opt/sidecars/node",
		"hello_timeout_ms": 5000,
		"event_buffer": 128
	}`)
	writeDescriptor(t, dir, "claude.json", `{"name": "claude", "command": "claude-sidecar"}`)
	writeDescriptor(t, dir, "README.md", "not a descriptor")

	descriptors, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("discovered %d descriptors, want 2", len(descriptors))
	}
	// Sorted by name.
	if descriptors[0].Name != "claude" || descriptors[1].Name != "node" {
		t.Errorf("order = %s, %s", descriptors[0].Name, descriptors[1].Name)
	}

	node := descriptors[1]
	if node.RegistryKey() != "sidecar:node" {
		t.Errorf("registry key = %s", node.RegistryKey())
	}
	spec := node.Spec()
	if spec.Command != "node" || len(spec.Args) != 1 || spec.Cwd != "/opt/sidecars/node" {
		t.Errorf("spec = %+v", spec)
	}
	if spec.HelloTimeout != 5*time.Second || spec.EventBuffer != 128 {
		t.Errorf("spec tuning = %+v", spec)
	}
	if spec.Env["NODE_ENV"] != "production" {
		t.Errorf("spec env = %+v", spec.Env)
	}
}

func TestDiscoverMissingDirectory(t *testing.T) {
	descriptors, err := Discover(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(descriptors) != 0 {
		t.Errorf("descriptors = %v", descriptors)
	}
}

func TestDiscoverRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing command", `{"name": "x"}`},
		{"missing name", `{"command": "x"}`},
		{"empty command", `{"name": "x", "command": ""}`},
		{"bad name characters", `{"name": "a b", "command": "x"}`},
		{"unknown field", `{"name": "x", "command": "x", "shell": true}`},
		{"wrong type", `{"name": "x", "command": "x", "args": "not-a-list"}`},
		{"not json", `{broken`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeDescriptor(t, dir, "bad.json", tt.content)
			if _, err := Discover(dir); err == nil {
				t.Errorf("invalid descriptor accepted: %s", tt.content)
			}
		})
	}
}
