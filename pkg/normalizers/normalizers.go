// Package normalizers canonicalizes raw identifier text so equal identifiers
// compare equal. Every function here is pure and idempotent.
package normalizers

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Ramsey-B/thistle/pkg/models"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

// chains maps each identifier type to the normalizers applied to it, in order.
var chains = map[models.IdentifierType][]string{
	models.IdentifierTypePhone:        {"trim", "nphone"},
	models.IdentifierTypeEmail:        {"trim", "lowercase"},
	models.IdentifierTypeSocialHandle: {"trim", "strip_at", "lowercase"},
	models.IdentifierTypeUsername:     {"trim", "lowercase"},
	models.IdentifierTypeVehiclePlate: {"alphanumeric", "uppercase"},
	models.IdentifierTypeVIN:          {"alphanumeric", "uppercase"},
	models.IdentifierTypeIMEI:         {"alphanumeric", "uppercase"},
	models.IdentifierTypeIMSI:         {"alphanumeric", "uppercase"},
	models.IdentifierTypeDeviceID:     {"alphanumeric", "uppercase"},
	models.IdentifierTypeOther:        {"collapse_whitespace"},
}

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("strip_at", StripAt)
	Register("nphone", NormalizePhone)
	Register("alphanumeric", Alphanumeric)
	Register("collapse_whitespace", CollapseWhitespace)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Chain returns the normalizer names used for t. Unknown types use the Other chain.
func Chain(t models.IdentifierType) []string {
	if chain, ok := chains[t]; ok {
		return chain
	}
	return chains[models.IdentifierTypeOther]
}

// Normalize canonicalizes raw for comparison. An empty result means the value is
// unusable and must be rejected by the caller.
func Normalize(t models.IdentifierType, raw string) string {
	return ApplyChain(raw, Chain(t)...)
}

// InferType guesses the identifier type of an untyped participant string.
func InferType(raw string) models.IdentifierType {
	value := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(value, "@"):
		return models.IdentifierTypeSocialHandle
	case strings.Contains(value, "@") && strings.Contains(value, "."):
		return models.IdentifierTypeEmail
	case countDigits(value) >= 7:
		return models.IdentifierTypePhone
	default:
		return models.IdentifierTypeUsername
	}
}

// ParseIdentifierType accepts a type name case-insensitively, ignoring spaces,
// dashes and underscores ("device_id", "social handle").
func ParseIdentifierType(s string) (models.IdentifierType, error) {
	key := compactKey(s)
	for _, t := range models.IdentifierTypes {
		if compactKey(string(t)) == key {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown identifier type %q", s)
}

// NormalizeAlias is the comparison form of a target or global person alias.
func NormalizeAlias(alias string) string {
	return Lowercase(CollapseWhitespace(alias))
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// StripAt removes leading @ characters, and any whitespace between them, from a handle
func StripAt(s string) string {
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return r == '@' || unicode.IsSpace(r)
	})
}

// NormalizePhone reduces a phone number to an E.164-like form. Ten digit numbers
// are assumed to be North American and get +1; eleven digit numbers starting
// with 1 get +. A leading + keeps the digits as given.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	digits := digitsOnly(s)
	if digits == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(s, "+"):
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	default:
		return digits
	}
}

// Alphanumeric keeps only letters and digits
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// CollapseWhitespace trims and replaces inner whitespace runs with one space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func digitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func compactKey(s string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '_' || r == '-' {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}
