package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/term"
)

// Terminal is a Prompter that talks to the user on a terminal. Passphrases
// are read without echo. Only one prompt is shown at a time.
//
// A blocking read cannot be interrupted. When a prompt is cancelled its read
// stays pending, and the next line typed answers the following prompt. That
// line is read the way the cancelled prompt read it, so it may be echoed.
type Terminal struct {
	mu sync.Mutex

	fd  int
	in  *bufio.Reader
	out io.Writer

	// pending is the read left behind by a cancelled prompt, nil if none.
	pending chan readResult
}

// A compile time check to ensure Terminal implements the Prompter interface.
var _ Prompter = (*Terminal)(nil)

// NewTerminal creates a Terminal on the process' stdin and stdout.
func NewTerminal() *Terminal {
	return &Terminal{
		fd:  int(os.Stdin.Fd()),
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
}

// readResult is the outcome of one blocking terminal read.
type readResult struct {
	line string
	err  error
}

// readLine runs read in a goroutine so the caller can give up when ctx is
// done. A read still pending from a cancelled prompt is awaited instead of
// starting a new one. The caller must hold t.mu.
func (t *Terminal) readLine(ctx context.Context,
	read func() (string, error)) (string, error) {

	if t.pending == nil {
		done := make(chan readResult, 1)
		go func() {
			line, err := read()
			done <- readResult{line: line, err: err}
		}()
		t.pending = done
	}

	select {
	case res := <-t.pending:
		t.pending = nil
		return res.line, res.err

	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Terminal) readSecret(ctx context.Context, label string) (string,
	error) {

	fmt.Fprint(t.out, label)
	defer fmt.Fprintln(t.out)

	return t.readLine(ctx, func() (string, error) {
		if !term.IsTerminal(t.fd) {
			line, err := t.in.ReadString('\n')
			return strings.TrimRight(line, "\r\n"), err
		}

		b, err := term.ReadPassword(t.fd)
		return string(b), err
	})
}

// PromptPassphrase implements Prompter.
func (t *Terminal) PromptPassphrase(ctx context.Context,
	owner string) fn.Option[string] {

	t.mu.Lock()
	defer t.mu.Unlock()

	label := "Passphrase: "
	if owner != "" {
		label = fmt.Sprintf("Passphrase for %s: ", owner)
	}

	pass, err := t.readSecret(ctx, label)
	if err != nil {
		log.Debugf("Passphrase prompt aborted: %v", err)
		return fn.None[string]()
	}

	return fn.Some(pass)
}

// PromptNewPassphrase implements Prompter.
func (t *Terminal) PromptNewPassphrase(
	ctx context.Context) fn.Option[PassphrasePair] {

	t.mu.Lock()
	defer t.mu.Unlock()

	first, err := t.readSecret(ctx, "New passphrase: ")
	if err != nil {
		log.Debugf("New passphrase prompt aborted: %v", err)
		return fn.None[PassphrasePair]()
	}
	second, err := t.readSecret(ctx, "Confirm passphrase: ")
	if err != nil {
		log.Debugf("New passphrase prompt aborted: %v", err)
		return fn.None[PassphrasePair]()
	}

	return fn.Some(PassphrasePair{First: first, Second: second})
}

// Confirm implements Prompter.
func (t *Terminal) Confirm(ctx context.Context,
	details *ConfirmationDetails) bool {

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintln(t.out, "Please confirm the following transaction:")
	fmt.Fprint(t.out, details.String())
	fmt.Fprint(t.out, "Sign this transaction? (yes/no): ")

	answer, err := t.readLine(ctx, func() (string, error) {
		return t.in.ReadString('\n')
	})
	if err != nil {
		log.Debugf("Confirmation prompt aborted: %v", err)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// Notify implements Prompter.
func (t *Terminal) Notify(msg string, severity Severity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "[%s] %s\n", severity, msg)
}
