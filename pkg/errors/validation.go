package errors

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// ValidateIdentifier validates a node or region identifier.
// Identifiers end up in CSV headers, GeoJSON properties and SVG element ids,
// so they are held to a conservative rule set:
//   - No empty identifiers
//   - No control characters or null bytes
//   - No leading or trailing whitespace
//   - Maximum length of 128 characters
func ValidateIdentifier(kind, id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "%s id cannot be empty", kind)
	}

	if len(id) > 128 {
		return New(ErrCodeInvalidInput, "%s id too long (max 128 characters): %q", kind, id[:32]+"...")
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "%s id contains invalid control characters: %q", kind, id)
		}
	}

	if strings.TrimSpace(id) != id {
		return New(ErrCodeInvalidInput, "%s id has surrounding whitespace: %q", kind, id)
	}

	return nil
}

// ValidateBuffer validates the tessellation frame margin.
// The margin must be finite and strictly positive.
func ValidateBuffer(buffer float64) error {
	if math.IsNaN(buffer) || math.IsInf(buffer, 0) {
		return New(ErrCodeInvalidInput, "buffer must be finite, got %v", buffer)
	}
	if buffer <= 0 {
		return New(ErrCodeInvalidInput, "buffer must be positive, got %v", buffer)
	}
	return nil
}

// ValidateTolerance validates a numeric tolerance used in sum checks.
func ValidateTolerance(eps float64) error {
	if math.IsNaN(eps) || math.IsInf(eps, 0) || eps < 0 {
		return New(ErrCodeInvalidInput, "tolerance must be a finite non-negative number, got %v", eps)
	}
	if eps >= 1 {
		return New(ErrCodeInvalidInput, "tolerance must be below 1, got %v", eps)
	}
	return nil
}

// ValidateFraction validates that v lies in the closed unit interval.
func ValidateFraction(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return New(ErrCodeInvalidInput, "%s must be in [0, 1], got %v", name, v)
	}
	return nil
}

// ValidateQuantity validates a demand or weight value.
// Quantities must be finite and non-negative.
func ValidateQuantity(kind, id string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return New(ErrCodeInvalidInput, "%s for %q must be finite, got %v", kind, id, v)
	}
	if v < 0 {
		return New(ErrCodeInvalidInput, "%s for %q must be non-negative, got %v", kind, id, v)
	}
	return nil
}

// ValidatePath validates a file path supplied on the command line or in a
// config file.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	return nil
}

// fieldNameRegex matches attribute names usable as id or value columns in
// shapefile and GeoJSON inputs.
var fieldNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:-]*$`)

// ValidateFieldName validates an attribute column name.
func ValidateFieldName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "field name cannot be empty")
	}
	if !fieldNameRegex.MatchString(name) {
		return New(ErrCodeInvalidInput, "invalid field name: %q", name)
	}
	return nil
}
