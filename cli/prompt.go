package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// ErrEmptyInput is the validation error of required prompts.
var ErrEmptyInput = errors.New("you must enter something")

// Prompter asks questions on a terminal. The zero value uses os.Stdin and
// os.Stdout.
type Prompter struct {
	In  io.ReadCloser
	Out io.WriteCloser
}

func (p Prompter) stdin() io.ReadCloser {
	if p.In == nil {
		return os.Stdin
	}

	return p.In
}

func (p Prompter) stdout() io.WriteCloser {
	if p.Out == nil {
		return os.Stdout
	}

	return p.Out
}

// Select asks for one of items and returns it.
func (p Prompter) Select(label string, items ...string) (string, error) {
	sel := &promptui.Select{
		Label:  label,
		Items:  items,
		Size:   len(items),
		Stdin:  p.stdin(),
		Stdout: p.stdout(),
	}

	_, value, err := sel.Run()

	return value, err
}

// String asks for a non-empty line.
func (p Prompter) String(label string) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Validate: validateNonEmpty,
		Stdin:    p.stdin(),
		Stdout:   p.stdout(),
	}

	return prompt.Run()
}

// Float asks for a number.
func (p Prompter) Float(label string) (float64, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Validate: validateFloat,
		Stdin:    p.stdin(),
		Stdout:   p.stdout(),
	}

	txt, err := prompt.Run()
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(txt, 64)
}

// Confirm asks a yes/no question. Answering no is not an error.
func (p Prompter) Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     p.stdin(),
		Stdout:    p.stdout(),
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func validateNonEmpty(s string) error {
	if len(s) == 0 {
		return ErrEmptyInput
	}

	return nil
}

func validateFloat(s string) error {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}

	return nil
}
