package protocol

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in        string
		major     int
		minor     int
		ok        bool
	}{
		{"abp/v0.1", 0, 1, true},
		{"abp/v1.0", 1, 0, true},
		{"abp/v12.34", 12, 34, true},
		{"abp/v0", 0, 0, false},
		{"abp/v0.", 0, 0, false},
		{"abp/v.1", 0, 0, false},
		{"abp/v1.2.3", 0, 0, false},
		{"abp/1.0", 0, 0, false},
		{"v1.0", 0, 0, false},
		{"", 0, 0, false},
		{"abp/vx.y", 0, 0, false},
	}

	for _, tt := range tests {
		major, minor, ok := ParseVersion(tt.in)
		if ok != tt.ok || major != tt.major || minor != tt.minor {
			t.Errorf("ParseVersion(%q) = (%d, %d, %v), want (%d, %d, %v)",
				tt.in, major, minor, ok, tt.major, tt.minor, tt.ok)
		}
	}
}

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"abp/v0.1", "abp/v0.1", true},
		{"abp/v0.1", "abp/v0.9", true},
		{"abp/v0.1", "abp/v1.0", false},
		{"abp/v1.0", "abp/v0.1", false},
		{"abp/v0.1", "garbage", false},
		{"garbage", "garbage", false},
	}
	for _, tt := range tests {
		if got := IsCompatible(tt.a, tt.b); got != tt.want {
			t.Errorf("IsCompatible(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCompatibilityProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	genVersion := gopter.CombineGens(
		gen.IntRange(0, 99),
		gen.IntRange(0, 99),
	).Map(func(vals []any) string {
		return fmt.Sprintf("abp/v%d.%d", vals[0].(int), vals[1].(int))
	})

	properties.Property("reflexive", prop.ForAll(
		func(v string) bool { return IsCompatible(v, v) },
		genVersion,
	))

	properties.Property("symmetric", prop.ForAll(
		func(a, b string) bool { return IsCompatible(a, b) == IsCompatible(b, a) },
		genVersion, genVersion,
	))

	properties.Property("parse roundtrip", prop.ForAll(
		func(major, minor int) bool {
			m, n, ok := ParseVersion(fmt.Sprintf("abp/v%d.%d", major, minor))
			return ok && m == major && n == minor
		},
		gen.IntRange(0, 9999), gen.IntRange(0, 9999),
	))

	properties.TestingRun(t)
}
