package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/amp-labs/diagramfsm/configs"
	"github.com/amp-labs/diagramfsm/statemachine"
	"github.com/amp-labs/diagramfsm/statemachine/validator"
	"github.com/spf13/cobra"
)

var errInvalidConfig = errors.New("invalid configuration")

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [name|path]...",
		Short: "Check machine configurations",
		Long: `Runs every validation rule against the named built-in configurations or
YAML files and reports all problems at once. With no arguments every
built-in configuration is checked. Handlers must be ones the editor registers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = configs.Loader{}.ListAvailable()
			}

			failed := 0

			for _, target := range args {
				result, err := validateTarget(target, strict)
				if err != nil {
					failed++

					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", target, err)

					continue
				}

				if !result.Valid {
					failed++
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", target, result.String())
			}

			if failed > 0 {
				return fmt.Errorf("%w: %d of %d failed", errInvalidConfig, failed, len(args))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")

	return cmd
}

// validateTarget treats target as a file when one exists at that path and
// as a built-in name otherwise.
func validateTarget(target string, strict bool) (validator.ValidationResult, error) {
	handlers := validator.KnownHandlers(knownHandlers()...)

	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		return validator.ValidateFileWithOptions(target, strict, handlers)
	}

	data, err := configs.Loader{}.LoadByName(target)
	if err != nil {
		return validator.ValidationResult{}, err
	}

	config, err := statemachine.ParseConfig(data)
	if err != nil {
		return validator.ValidationResult{}, err
	}

	rules := append(validator.DefaultRules(), handlers)

	if strict {
		return validator.ValidateWithRulesStrict(config, rules), nil
	}

	return validator.ValidateWithRules(config, rules), nil
}
