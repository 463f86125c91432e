// Package confirm presents blocking choices to the device user.
package confirm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Action is a choice offered by a prompt.
type Action string

const (
	ActionRetry  Action = "Retry"
	ActionExit   Action = "Exit"
	ActionCancel Action = "Cancel"
)

// ErrDismissed is returned when the user dismisses a dismissible prompt.
var ErrDismissed = errors.New("confirm: prompt dismissed")

// Prompt is one modal confirmation.
type Prompt struct {
	Title   string
	Body    string
	Actions []Action
	// Dismissible prompts may be closed without choosing an action.
	Dismissible bool
}

// Surface shows a prompt and blocks until the user picks an action.
type Surface interface {
	Ask(ctx context.Context, p Prompt) (Action, error)
}

// Terminal is a line-based Surface over a reader and writer.
type Terminal struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates a Terminal reading choices from in.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Ask prints the prompt and reads a choice by number or name
// (case-insensitive). Non-dismissible prompts ask again on empty or unknown
// input; dismissible ones return ErrDismissed on an empty line.
func (t *Terminal) Ask(ctx context.Context, p Prompt) (Action, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(p.Actions) == 0 {
		return "", fmt.Errorf("confirm: prompt %q has no actions", p.Title)
	}

	fmt.Fprintf(t.out, "\n== %s ==\n%s\n", p.Title, p.Body)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		for i, a := range p.Actions {
			fmt.Fprintf(t.out, "  [%d] %s\n", i+1, a)
		}
		fmt.Fprint(t.out, "> ")

		line, err := t.readLine(ctx)
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)

		if line == "" && p.Dismissible {
			return "", ErrDismissed
		}
		if a, ok := match(line, p.Actions); ok {
			return a, nil
		}
		fmt.Fprintln(t.out, "Please choose one of the options.")
	}
}

// readLine returns early when ctx ends. The pending read is abandoned and
// its line is lost.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && !(errors.Is(r.err, io.EOF) && r.line != "") {
			if errors.Is(r.err, io.EOF) {
				return "", fmt.Errorf("confirm: input closed: %w", r.err)
			}
			return "", r.err
		}
		return r.line, nil
	}
}

func match(input string, actions []Action) (Action, bool) {
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(actions) {
			return actions[n-1], true
		}
		return "", false
	}
	for _, a := range actions {
		if strings.EqualFold(input, string(a)) {
			return a, true
		}
	}
	return "", false
}

// Scripted replays a fixed list of answers and records every prompt.
type Scripted struct {
	mu      sync.Mutex
	answers []Action
	prompts []Prompt
}

// NewScripted returns a Surface answering with answers in order. When the
// script runs out it returns an error.
func NewScripted(answers ...Action) *Scripted {
	return &Scripted{answers: answers}
}

// Ask records p and returns the next scripted answer.
func (s *Scripted) Ask(ctx context.Context, p Prompt) (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.answers) == 0 {
		return "", fmt.Errorf("confirm: no scripted answer for %q", p.Title)
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// Prompts returns the prompts seen so far.
func (s *Scripted) Prompts() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.prompts...)
}
