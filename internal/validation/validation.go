package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// uuidRegex matches standard UUID format
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// safePathRegex matches safe path components (alphanumeric, dash, underscore, dot)
	safePathRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

	// nameRegex matches display names for sandboxes
	nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_. -]*$`)
)

// ValidateUUID checks if the string is a valid UUID
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if !uuidRegex.MatchString(id) {
		return fmt.Errorf("invalid UUID format: %s", id)
	}
	return nil
}

// validatePrefixedID checks prefix_<uuid> identifiers
func validatePrefixedID(id, prefix, kind string) error {
	if id == "" {
		return fmt.Errorf("%s ID cannot be empty", kind)
	}
	if !strings.HasPrefix(id, prefix) {
		return fmt.Errorf("invalid %s ID format: %s", kind, id)
	}
	if err := ValidateUUID(strings.TrimPrefix(id, prefix)); err != nil {
		return fmt.Errorf("invalid %s ID format: %s", kind, id)
	}
	return nil
}

// ValidateSandboxID validates a sandbox ID (sbx_<uuid>)
func ValidateSandboxID(id string) error {
	return validatePrefixedID(id, "sbx_", "sandbox")
}

// ValidateSessionID validates a session ID (ses_<uuid>)
func ValidateSessionID(id string) error {
	return validatePrefixedID(id, "ses_", "session")
}

// ValidateMessageID validates a message ID (msg_<uuid>)
func ValidateMessageID(id string) error {
	return validatePrefixedID(id, "msg_", "message")
}

// ValidateName validates a sandbox display name. Empty is allowed, a
// name is generated in that case.
func ValidateName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > 64 {
		return fmt.Errorf("name too long: %d chars (max 64)", len(name))
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid name: %s", name)
	}
	return nil
}

// ValidateModel validates a model reference in providerID/modelID format.
// Empty is allowed, the configured default applies.
func ValidateModel(model string) error {
	if model == "" {
		return nil
	}
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid model format: %s (expected providerID/modelID)", model)
	}
	return nil
}

// SanitizePath removes path traversal attempts and validates path components
func SanitizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	// Reject obvious traversal attempts
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal detected: %s", path)
	}

	// Reject absolute paths when relative expected
	if strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}

	// Split and validate each component
	parts := strings.Split(path, "/")
	for _, part := range parts {
		if part == "" {
			continue // Allow trailing/leading slashes
		}
		if !safePathRegex.MatchString(part) {
			return "", fmt.Errorf("unsafe path component: %s", part)
		}
	}

	return path, nil
}

// ValidateContainerID validates a container ID (hex string)
func ValidateContainerID(id string) error {
	if id == "" {
		return fmt.Errorf("container ID cannot be empty")
	}

	// Container IDs are hex strings, typically 64 chars but can be shorter for short IDs
	if len(id) < 12 || len(id) > 64 {
		return fmt.Errorf("invalid container ID length: %s", id)
	}

	for _, c := range id {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return fmt.Errorf("invalid container ID format: %s", id)
		}
	}

	return nil
}
