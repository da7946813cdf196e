package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Prompter asks questions on out and reads answers line by line from in.
// Lines are read on a background goroutine so a pending question can be
// abandoned when the context is cancelled.
type Prompter struct {
	out   io.Writer
	lines chan string
	err   error
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{out: out, lines: make(chan string)}
	go p.read(in)
	return p
}

func (p *Prompter) read(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
	p.err = sc.Err()
	close(p.lines)
}

// Ask prints prompt and returns the next input line. It returns io.EOF once
// input is exhausted.
func (p *Prompter) Ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", prompt)
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			if p.err != nil {
				return "", fmt.Errorf("read input: %w", p.err)
			}
			return "", io.EOF
		}
		return line, nil
	}
}

// Choose asks until the answer is one of choices. An empty answer selects def.
func (p *Prompter) Choose(ctx context.Context, prompt string, choices []string, def string) (string, error) {
	full := fmt.Sprintf("%s [%s] (%s)", prompt, strings.Join(choices, "/"), def)
	for {
		answer, err := p.Ask(ctx, full)
		if err != nil {
			return "", err
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer == "" {
			return def, nil
		}
		for _, c := range choices {
			if answer == c {
				return c, nil
			}
		}
		fmt.Fprintf(p.out, "Please select one of the available options\n")
	}
}
