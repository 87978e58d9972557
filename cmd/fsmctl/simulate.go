package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/amp-labs/diagramfsm/cli"
	"github.com/amp-labs/diagramfsm/scenario"
	"github.com/spf13/cobra"
)

var errScenariosFailed = errors.New("scenarios failed")

type resultView struct {
	scenario.Result

	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

func newSimulateCmd() *cobra.Command {
	var (
		workers int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "simulate <file|dir>...",
		Short: "Replay scripted interaction scenarios",
		Long: `Replays each scenario against a fresh editor driven by a fake clock and
checks its expectations. Directories contribute their *.yaml and *.yml files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := scenarioPaths(args)
			if err != nil {
				return err
			}

			results := scenario.RunAll(cmd.Context(), paths, workers)

			if asJSON {
				err = writeResultsJSON(cmd.OutOrStdout(), results)
			} else {
				err = writeReport(cmd.OutOrStdout(), results)
			}

			if err != nil {
				return err
			}

			failed := 0

			for _, r := range results {
				if !r.Passed() {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errScenariosFailed, failed, len(results))
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "scenarios replayed in parallel")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")

	return cmd
}

func scenarioPaths(args []string) ([]string, error) {
	var paths []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			paths = append(paths, arg)

			continue
		}

		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(arg, pattern))
			if err != nil {
				return nil, err
			}

			paths = append(paths, matches...)
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no scenario files in %s", scenario.ErrInvalidScenario, strings.Join(args, ", "))
	}

	return paths, nil
}

func writeResultsJSON(w io.Writer, results []scenario.Result) error {
	views := make([]resultView, 0, len(results))

	for _, r := range results {
		v := resultView{Result: r, Passed: r.Passed()}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}

		views = append(views, v)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(views)
}

func writeReport(w io.Writer, results []scenario.Result) error {
	var sb strings.Builder

	passed := 0

	for _, r := range results {
		status := "FAIL"
		if r.Passed() {
			status = "PASS"
			passed++
		}

		fmt.Fprintf(&sb, "%s  %s (%d steps)\n", status, r.Name, r.Steps)

		for _, f := range r.Failures {
			fmt.Fprintf(&sb, "      %s\n", f)
		}

		if r.Err != nil {
			fmt.Fprintf(&sb, "      error: %v\n", r.Err)
		}
	}

	sb.WriteString(cli.Divider(cli.DefaultWidth))
	sb.WriteString(cli.Banner(
		fmt.Sprintf("%d passed\n%d failed", passed, len(results)-passed),
		cli.DefaultWidth, cli.AlignCenter))
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())

	return err
}

