package prompt

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Notification is a message recorded by Mock.
type Notification struct {
	Msg      string
	Severity Severity
}

// Mock is a scripted Prompter for tests. Answers are consumed in order, an
// exhausted script behaves like a cancelled prompt.
type Mock struct {
	mu sync.Mutex

	// Passphrases answers PromptPassphrase.
	Passphrases []fn.Option[string]

	// NewPassphrases answers PromptNewPassphrase.
	NewPassphrases []fn.Option[PassphrasePair]

	// Confirmations answers Confirm.
	Confirmations []bool

	// Shown records every ConfirmationDetails passed to Confirm.
	Shown []*ConfirmationDetails

	// Notifications records every Notify call.
	Notifications []Notification

	// PassphraseHook, if set, runs before an answer of PromptPassphrase
	// or PromptNewPassphrase is returned.
	PassphraseHook func()
}

// A compile time check to ensure Mock implements the Prompter interface.
var _ Prompter = (*Mock)(nil)

// PromptPassphrase implements Prompter.
func (m *Mock) PromptPassphrase(_ context.Context, _ string) fn.Option[string] {
	m.mu.Lock()
	hook := m.PassphraseHook
	answer := fn.None[string]()
	if len(m.Passphrases) > 0 {
		answer = m.Passphrases[0]
		m.Passphrases = m.Passphrases[1:]
	}
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	return answer
}

// PromptNewPassphrase implements Prompter.
func (m *Mock) PromptNewPassphrase(
	_ context.Context) fn.Option[PassphrasePair] {

	m.mu.Lock()
	hook := m.PassphraseHook
	answer := fn.None[PassphrasePair]()
	if len(m.NewPassphrases) > 0 {
		answer = m.NewPassphrases[0]
		m.NewPassphrases = m.NewPassphrases[1:]
	}
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	return answer
}

// Confirm implements Prompter.
func (m *Mock) Confirm(_ context.Context, details *ConfirmationDetails) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Shown = append(m.Shown, details)
	if len(m.Confirmations) == 0 {
		return false
	}
	answer := m.Confirmations[0]
	m.Confirmations = m.Confirmations[1:]

	return answer
}

// Notify implements Prompter.
func (m *Mock) Notify(msg string, severity Severity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Notifications = append(m.Notifications, Notification{
		Msg:      msg,
		Severity: severity,
	})
}

// Messages returns the text of all recorded notifications.
func (m *Mock) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]string, len(m.Notifications))
	for i, n := range m.Notifications {
		msgs[i] = n.Msg
	}

	return msgs
}
