package protocol

import (
	"strconv"
	"strings"
)

// ParseVersion parses a contract version of the form "abp/vMAJOR.MINOR".
// Returns ok=false for anything else.
func ParseVersion(v string) (major, minor int, ok bool) {
	rest, found := strings.CutPrefix(v, "abp/v")
	if !found {
		return 0, 0, false
	}
	majStr, minStr, found := strings.Cut(rest, ".")
	if !found {
		return 0, 0, false
	}
	major, err := strconv.Atoi(majStr)
	if err != nil || majStr == "" {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(minStr)
	if err != nil || minStr == "" {
		return 0, 0, false
	}
	if major < 0 || minor < 0 {
		return 0, 0, false
	}
	return major, minor, true
}

// IsCompatible reports whether two contract versions interoperate: both
// parse and share a major component. Minor differences are additive.
func IsCompatible(a, b string) bool {
	aMaj, _, aOK := ParseVersion(a)
	bMaj, _, bOK := ParseVersion(b)
	return aOK && bOK && aMaj == bMaj
}
