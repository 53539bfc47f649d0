// Package termio provides the prompt/promptSelect TTY facility used by
// interactive commands.
package termio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// IO wraps an input/output pair for interactive prompting.
type IO struct {
	in       *bufio.Reader
	out      io.Writer
	forceTTY bool
}

// New creates an IO. forceTTY makes IsTTY report true regardless of the
// actual stdin (HAPPY_STACKS_TEST_TTY).
func New(in io.Reader, out io.Writer, forceTTY bool) *IO {
	return &IO{in: bufio.NewReader(in), out: out, forceTTY: forceTTY}
}

// Std returns an IO bound to the process stdin/stderr.
func Std(forceTTY bool) *IO {
	return New(os.Stdin, os.Stderr, forceTTY)
}

// Out returns the writer prompts and guide output go to.
func (t *IO) Out() io.Writer { return t.out }

// IsTTY reports whether prompting is possible.
func (t *IO) IsTTY() bool {
	if t.forceTTY {
		return true
	}
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Prompt asks for a line of input, returning def when the answer is empty.
func (t *IO) Prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(t.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(t.out, "%s: ", label)
	}
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Confirm asks a yes/no question.
func (t *IO) Confirm(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	answer, err := t.Prompt(fmt.Sprintf("%s (%s)", label, hint), "")
	if err != nil {
		return false, err
	}
	if answer == "" {
		return def, nil
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return def, nil
}

// Option is one selectable choice.
type Option struct {
	Key   string
	Label string
}

// PromptSelect displays numbered options and returns the chosen key.
// Accepts the number, the key, or an unambiguous key prefix.
func (t *IO) PromptSelect(label string, options []Option) (string, error) {
	fmt.Fprintf(t.out, "%s\n", label)
	for i, opt := range options {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, opt.Label)
	}
	for {
		answer, err := t.Prompt("choice", "")
		if err != nil {
			return "", err
		}
		for i, opt := range options {
			if answer == fmt.Sprintf("%d", i+1) || answer == opt.Key {
				return opt.Key, nil
			}
		}
		var matches []string
		for _, opt := range options {
			if answer != "" && strings.HasPrefix(opt.Key, answer) {
				matches = append(matches, opt.Key)
			}
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
		fmt.Fprintf(t.out, "unrecognized choice %q\n", answer)
	}
}
