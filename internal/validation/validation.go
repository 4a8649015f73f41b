// Package validation provides centralized input validation for depot.
//
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for entity names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// DefaultNameRules returns the default rules for entity names.
func DefaultNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    false,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateEntityName validates an entity name with default rules.
func ValidateEntityName(name string) error {
	return ValidateName(name, DefaultNameRules())
}

// =============================================================================
// Description Validation
// =============================================================================

const maxDescriptionLength = 1024

// ValidateDescription validates a free-form description. Empty is fine.
func ValidateDescription(desc string) error {
	if len(desc) > maxDescriptionLength {
		return fmt.Errorf("description too long: maximum %d characters", maxDescriptionLength)
	}
	for i, r := range desc {
		if (r < 32 && r != '\n' && r != '\t') || r == 127 {
			return fmt.Errorf("description cannot contain control characters at position %d", i)
		}
	}
	return nil
}

// =============================================================================
// =============================================================================

var sqlLikeMetaChars = regexp.MustCompile(`[%_\[\]\\]`)

// EscapeLikePattern escapes special characters in a LIKE pattern.
//
func EscapeLikePattern(pattern string) string {
	return sqlLikeMetaChars.ReplaceAllStringFunc(pattern, func(s string) string {
		return "\\" + s
	})
}

// SafeLikePrefix creates a safe LIKE prefix pattern.
func SafeLikePrefix(prefix string) string {
	return EscapeLikePattern(prefix) + "%"
}

// SafeLikeContains creates a safe LIKE contains pattern.
func SafeLikeContains(pattern string) string {
	return "%" + EscapeLikePattern(pattern) + "%"
}
