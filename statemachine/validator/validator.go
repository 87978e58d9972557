package validator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/amp-labs/diagramfsm/statemachine"
)

// ValidationResult contains the results of validating a state machine config.
type ValidationResult struct {
	Valid       bool
	Errors      []ValidationError
	Warnings    []ValidationWarning
	Suggestions []Suggestion
}

// ValidationError represents a validation error with fix suggestions.
type ValidationError struct {
	Code     string   // Error code like "UNREACHABLE_STATE", "INVALID_CONDITION"
	Message  string   // Human-readable error message
	Location Location // Where the error occurred
	Fix      *Fix     // Optional auto-fix suggestion
}

// ValidationWarning represents a non-critical issue.
type ValidationWarning struct {
	Code     string
	Message  string
	Location Location
}

// Suggestion provides improvement recommendations.
type Suggestion struct {
	Message string // Suggestion description
	Example string // YAML example showing the improvement
}

// Location identifies where an issue occurred.
type Location struct {
	File  string // Config file path
	State string // State name if applicable
	Event string // Event name if applicable
}

// Validate runs the default rules against config.
func Validate(config *statemachine.Config) ValidationResult {
	return ValidateWithRules(config, DefaultRules())
}

// ValidateFile parses a config file and validates it.
func ValidateFile(path string) (ValidationResult, error) {
	return ValidateFileWithOptions(path, false)
}

// ValidateFileStrict parses a config file and validates it in strict mode.
func ValidateFileStrict(path string) (ValidationResult, error) {
	return ValidateFileWithOptions(path, true)
}

// ValidateFileWithOptions parses a config file without the loader's own
// validation, so every problem is reported through the rules.
func ValidateFileWithOptions(path string, strict bool, extra ...Rule) (ValidationResult, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Intentional path-based loading
	if err == nil {
		var config *statemachine.Config

		config, err = statemachine.ParseConfig(data)
		if err == nil {
			rules := append(DefaultRules(), extra...)

			var result ValidationResult
			if strict {
				result = ValidateWithRulesStrict(config, rules)
			} else {
				result = ValidateWithRules(config, rules)
			}

			result.setFile(path)

			return result, nil
		}
	}

	return ValidationResult{
		Valid: false,
		Errors: []ValidationError{
			{
				Code:     "CONFIG_LOAD_FAILED",
				Message:  fmt.Sprintf("Failed to load config: %v", err),
				Location: Location{File: path},
			},
		},
	}, err
}

func (r *ValidationResult) setFile(path string) {
	for i := range r.Errors {
		if r.Errors[i].Location.File == "" {
			r.Errors[i].Location.File = path
		}
	}

	for i := range r.Warnings {
		if r.Warnings[i].Location.File == "" {
			r.Warnings[i].Location.File = path
		}
	}
}

// ValidateWithRules validates using custom rules. The structural checks of
// Config.Validate always run first.
func ValidateWithRules(config *statemachine.Config, rules []Rule) ValidationResult {
	var result ValidationResult

	if config == nil {
		return ValidationResult{Errors: []ValidationError{{Code: "CONFIG_MISSING", Message: "config is nil"}}}
	}

	result.Errors = structuralErrors(config)

	for _, rule := range rules {
		ruleResult := rule.Check(config)
		result.Errors = append(result.Errors, ruleResult.Errors...)
		result.Warnings = append(result.Warnings, ruleResult.Warnings...)
	}

	result.Valid = len(result.Errors) == 0
	result.Suggestions = generateSuggestions(config)

	return result
}

// ValidateWithRulesStrict treats warnings as errors.
func ValidateWithRulesStrict(config *statemachine.Config, rules []Rule) ValidationResult {
	result := ValidateWithRules(config, rules)

	for _, warning := range result.Warnings {
		result.Errors = append(result.Errors, ValidationError{
			Code:     warning.Code,
			Message:  warning.Message,
			Location: warning.Location,
		})
	}

	result.Warnings = nil
	result.Valid = len(result.Errors) == 0

	return result
}

func structuralErrors(config *statemachine.Config) []ValidationError {
	err := config.Validate()
	if err == nil {
		return nil
	}

	var cfgErr *statemachine.ConfigError
	if !errors.As(err, &cfgErr) {
		return []ValidationError{{Code: "CONFIG_INVALID", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(cfgErr.Problems))
	for _, problem := range cfgErr.Problems {
		out = append(out, ValidationError{Code: "CONFIG_INVALID", Message: problem.Error()})
	}

	return out
}

func generateSuggestions(config *statemachine.Config) []Suggestion {
	var suggestions []Suggestion

	described := 0

	for _, state := range config.StateMachine.States {
		if state.Description != "" {
			described++
		}
	}

	if described == 0 && len(config.StateMachine.States) > 2 {
		suggestions = append(suggestions, Suggestion{
			Message: "Consider describing states; descriptions show up in graphs and debug output",
			Example: `states:
  dragging:
    description: "Node follows the pointer"`,
		})
	}

	if config.Description == "" {
		suggestions = append(suggestions, Suggestion{
			Message: "Consider adding a top-level description",
			Example: `name: entity
description: "Per-node interaction lifecycle"`,
		})
	}

	return suggestions
}

// HasErrors returns true if the result has any errors.
func (r ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if the result has any warnings.
func (r ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Codes returns the codes of all errors followed by all warnings.
func (r ValidationResult) Codes() []string {
	codes := make([]string, 0, len(r.Errors)+len(r.Warnings))

	for _, err := range r.Errors {
		codes = append(codes, err.Code)
	}

	for _, warn := range r.Warnings {
		codes = append(codes, warn.Code)
	}

	return codes
}

// String returns a human-readable summary of validation results.
func (r ValidationResult) String() string {
	var sb strings.Builder

	if r.Valid {
		sb.WriteString("✓ Configuration is valid\n")
	} else {
		sb.WriteString(fmt.Sprintf("✗ Configuration has %d error(s)\n", len(r.Errors)))
	}

	for _, err := range r.Errors {
		sb.WriteString(fmt.Sprintf("  [%s] %s", err.Code, err.Message))

		if err.Location.State != "" {
			sb.WriteString(fmt.Sprintf(" (state: %s)", err.Location.State))
		}

		sb.WriteString("\n")

		if err.Fix != nil {
			sb.WriteString(fmt.Sprintf("    Fix: %s\n", err.Fix.Description))
		}
	}

	if len(r.Warnings) > 0 {
		sb.WriteString(fmt.Sprintf("\n⚠ %d warning(s):\n", len(r.Warnings)))

		for _, warn := range r.Warnings {
			sb.WriteString(fmt.Sprintf("  [%s] %s\n", warn.Code, warn.Message))
		}
	}

	if len(r.Suggestions) > 0 {
		sb.WriteString(fmt.Sprintf("\n%d suggestion(s) for improvement\n", len(r.Suggestions)))
	}

	return sb.String()
}
