package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"
)

// Error codes shared with the CLI.
const (
	ErrCodeNotFound   = "E005" // Config path not found
	ErrCodeLoadFailed = "E004" // Config could not be read or parsed
	ErrCodeSchema     = "E010" // Config violates the job schema
	ErrCodeEnv        = "E011" // Env file or variable problem
	ErrCodeInvalid    = "E012" // Config is well-formed but unusable
)

// LoadError represents an error that occurred while loading a job config.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError collects every problem found in a job config.
type ValidationError struct {
	Code     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid config: %s", e.Code, strings.Join(e.Problems, "; "))
}
