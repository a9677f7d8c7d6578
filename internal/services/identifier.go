package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	MaxIdentifierLength  = 64
	MaxDisplayNameLength = 120
	MaxBioLength         = 4000
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateIdentifier checks a candidate short identifier against the allowed alphabet.
// Matching is exact: identifiers are case-sensitive and never normalized.
func ValidateIdentifier(candidate string) error {
	if candidate == "" {
		return fmt.Errorf("%w: short identifier is required", ErrInvalidInput)
	}
	if len(candidate) > MaxIdentifierLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidIdentifier, MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(candidate) {
		return fmt.Errorf("%w: only letters, numbers, hyphens, and underscores are allowed", ErrInvalidIdentifier)
	}
	return nil
}

// FieldErrors collects per-field validation messages for InvalidInput responses.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for _, k := range sortedKeys(f) {
		parts = append(parts, k+": "+f[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (f FieldErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

func validateCreateInput(in CreateProfileInput, requireBio bool) error {
	errs := FieldErrors{}
	if in.ShortIdentifier == "" {
		errs["short_identifier"] = "Short identifier is required"
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		errs["display_name"] = "Display name is required"
	} else if len(name) > MaxDisplayNameLength {
		errs["display_name"] = "Display name is too long"
	}
	bio := strings.TrimSpace(in.Bio)
	if bio == "" && requireBio {
		errs["bio"] = "Bio is required"
	} else if len(bio) > MaxBioLength {
		errs["bio"] = "Bio is too long"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
