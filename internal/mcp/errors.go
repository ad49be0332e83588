package mcp

import (
	"fmt"
	"strings"

	"github.com/bastionworks/bastion/internal/logger"
)

// errorCategory pairs a set of message substrings with the replacement
// returned to MCP clients when one matches.
type errorCategory struct {
	patterns    []string
	replacement string
}

var errorCategories = []errorCategory{
	{
		// Never leak credentials or config material
		patterns:    []string{"api_key", "token", "password", "secret", "credential", "auth"},
		replacement: "internal configuration error",
	},
	{
		// Docker / exec plumbing failures
		patterns: []string{
			"failed to exec", "failed to start", "connection refused",
			"no such file", "permission denied", "docker daemon",
			"context canceled", "timeout", "eof",
		},
		replacement: "internal error",
	},
}

// userFacingPatterns mark errors safe to return verbatim
var userFacingPatterns = []string{
	"not found", "already exists", "invalid", "required",
	"must be", "cannot be", "is not", "exceeded", "limit",
}

// SanitizeError returns a client-safe error. The full error is logged;
// only validation-style messages pass through unchanged.
func SanitizeError(err error, operation string) error {
	if err == nil {
		return nil
	}

	lower := strings.ToLower(err.Error())

	for _, cat := range errorCategories {
		for _, p := range cat.patterns {
			if strings.Contains(lower, p) {
				logger.Error("%s failed: %v", operation, err)
				return fmt.Errorf("%s failed: %s", operation, cat.replacement)
			}
		}
	}

	for _, p := range userFacingPatterns {
		if strings.Contains(lower, p) {
			return err
		}
	}

	logger.Error("%s failed: %v", operation, err)
	if len(lower) < 50 {
		return fmt.Errorf("%s failed: %s", operation, err.Error())
	}
	return fmt.Errorf("%s failed: an unexpected error occurred", operation)
}
