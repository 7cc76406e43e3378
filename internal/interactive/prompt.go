// Package interactive provides interactive prompts for user confirmation.
package interactive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before an answer is read.
var ErrNoInput = errors.New("no answer: input closed")

// Prompter asks yes/no questions on a line-oriented terminal.
type Prompter struct {
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
}

// NewPrompter creates a prompter with stdin/stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Confirm prints question and reads one line. Only "y" or "yes" (any case)
// is an approval; anything else, including an empty line, is a refusal.
// The read itself cannot be interrupted, so callers that need cancellation
// should run Confirm in its own goroutine.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, _ = fmt.Fprintf(p.out, "%s (y/n): ", question)

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return false, fmt.Errorf("reading answer: %w", err)
		}
		_, _ = fmt.Fprintln(p.out)
		return false, ErrNoInput
	}

	switch strings.ToLower(strings.TrimSpace(p.scanner.Text())) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
