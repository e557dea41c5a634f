package contract

import (
	"encoding/json"
	"fmt"
)

// Capability names a feature a backend can provide.
type Capability string

const (
	CapStreaming Capability = "streaming"

	// Built-in tool expectations.
	CapToolRead      Capability = "tool_read"
	CapToolWrite     Capability = "tool_write"
	CapToolEdit      Capability = "tool_edit"
	CapToolBash      Capability = "tool_bash"
	CapToolGlob      Capability = "tool_glob"
	CapToolGrep      Capability = "tool_grep"
	CapToolWebSearch Capability = "tool_web_search"
	CapToolWebFetch  Capability = "tool_web_fetch"
	CapToolAskUser   Capability = "tool_ask_user"

	// Governance hooks.
	CapHooksPreToolUse  Capability = "hooks_pre_tool_use"
	CapHooksPostToolUse Capability = "hooks_post_tool_use"

	// Session behavior.
	CapSessionResume Capability = "session_resume"
	CapSessionFork   Capability = "session_fork"

	// Reversibility.
	CapCheckpointing Capability = "checkpointing"

	// Structured output.
	CapStructuredOutputJSONSchema Capability = "structured_output_json_schema"

	// MCP integration.
	CapMcpClient Capability = "mcp_client"
	CapMcpServer Capability = "mcp_server"
)

// KnownCapabilities lists every capability in the fixed set.
func KnownCapabilities() []Capability {
	return []Capability{
		CapStreaming,
		CapToolRead, CapToolWrite, CapToolEdit, CapToolBash,
		CapToolGlob, CapToolGrep, CapToolWebSearch, CapToolWebFetch,
		CapToolAskUser,
		CapHooksPreToolUse, CapHooksPostToolUse,
		CapSessionResume, CapSessionFork,
		CapCheckpointing,
		CapStructuredOutputJSONSchema,
		CapMcpClient, CapMcpServer,
	}
}

// MinSupport is the minimum support level a requirement will accept.
type MinSupport string

const (
	// MinNative accepts native support only.
	MinNative MinSupport = "native"
	// MinEmulated accepts native, emulated, or restricted support.
	MinEmulated MinSupport = "emulated"
)

// Support is the support-level discriminator.
type Support int

const (
	SupportUnsupported Support = iota
	SupportRestricted
	SupportEmulated
	SupportNative
)

// SupportLevel is a backend's published support for one capability.
// Reason is set only for restricted support.
type SupportLevel struct {
	Level  Support
	Reason string
}

func Native() SupportLevel      { return SupportLevel{Level: SupportNative} }
func Emulated() SupportLevel    { return SupportLevel{Level: SupportEmulated} }
func Unsupported() SupportLevel { return SupportLevel{Level: SupportUnsupported} }

// Restricted marks a capability supported in principle but disabled by
// policy or environment.
func Restricted(reason string) SupportLevel {
	return SupportLevel{Level: SupportRestricted, Reason: reason}
}

// Satisfies reports whether this level meets the given minimum.
func (l SupportLevel) Satisfies(min MinSupport) bool {
	switch min {
	case MinNative:
		return l.Level == SupportNative
	case MinEmulated:
		return l.Level != SupportUnsupported
	default:
		return false
	}
}

// String returns the snake_case name of the level.
func (l SupportLevel) String() string {
	switch l.Level {
	case SupportNative:
		return "native"
	case SupportEmulated:
		return "emulated"
	case SupportRestricted:
		return "restricted"
	default:
		return "unsupported"
	}
}

// MarshalJSON encodes plain levels as snake_case strings and restricted
// levels as {"restricted":{"reason":...}} so manifests hash identically
// across implementations.
func (l SupportLevel) MarshalJSON() ([]byte, error) {
	if l.Level == SupportRestricted {
		return json.Marshal(map[string]map[string]string{
			"restricted": {"reason": l.Reason},
		})
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts both the string and the restricted-object forms.
func (l *SupportLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "native":
			*l = Native()
		case "emulated":
			*l = Emulated()
		case "unsupported":
			*l = Unsupported()
		default:
			return fmt.Errorf("invalid support level %q", s)
		}
		return nil
	}
	var obj struct {
		Restricted *struct {
			Reason string `json:"reason"`
		} `json:"restricted"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid support level: %w", err)
	}
	if obj.Restricted == nil {
		return fmt.Errorf("invalid support level object: missing restricted")
	}
	*l = Restricted(obj.Restricted.Reason)
	return nil
}

// CapabilityManifest maps capabilities to their published support level.
type CapabilityManifest map[Capability]SupportLevel

// Clone returns a shallow copy of the manifest.
func (m CapabilityManifest) Clone() CapabilityManifest {
	out := make(CapabilityManifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
