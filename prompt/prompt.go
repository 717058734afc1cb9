package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Severity classifies a user notification.
type Severity uint8

const (
	// SeverityInfo is a purely informational message.
	SeverityInfo Severity = iota

	// SeverityWarning is a message about a refused or suspicious action.
	SeverityWarning

	// SeverityError is a message about a failed operation.
	SeverityError
)

// String returns the label used when rendering a notification.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
}

// PassphrasePair is a newly chosen passphrase entered twice.
type PassphrasePair struct {
	First  string
	Second string
}

// Matches returns true if both entries are identical and non-empty.
func (p PassphrasePair) Matches() bool {
	return p.First != "" && p.First == p.Second
}

// ConfirmationDetails is what the user is shown before a transaction is
// signed.
type ConfirmationDetails struct {
	// Owner is the wallet owner name configured for this oracle.
	Owner string

	// Recipient is the address output[0] pays to.
	Recipient string

	// Amount is the value of output[0].
	Amount btcutil.Amount

	// NetworkFee is the fee as reported by the server. It is not
	// verified locally.
	NetworkFee btcutil.Amount

	// ServiceFee is the value of output[1].
	ServiceFee btcutil.Amount

	// Change is the value of output[2], if present.
	Change fn.Option[btcutil.Amount]

	// Total is the sum of all output values.
	Total btcutil.Amount
}

// String renders the details the way they are shown to the user.
func (d *ConfirmationDetails) String() string {
	var b strings.Builder

	if d.Owner != "" {
		fmt.Fprintf(&b, "Wallet owner:  %s\n", d.Owner)
	}
	fmt.Fprintf(&b, "Recipient:     %s\n", d.Recipient)
	fmt.Fprintf(&b, "Amount:        %s\n", d.Amount)
	fmt.Fprintf(&b, "Network fee:   %s (reported by the server)\n",
		d.NetworkFee)
	fmt.Fprintf(&b, "Service fee:   %s\n", d.ServiceFee)
	d.Change.WhenSome(func(change btcutil.Amount) {
		fmt.Fprintf(&b, "Change:        %s\n", change)
	})
	fmt.Fprintf(&b, "Total outputs: %s\n", d.Total)

	return b.String()
}

// Prompter is the interactive collaborator that collects passphrases and
// confirmations from the user. All methods may block until the user answers
// or ctx is done.
type Prompter interface {
	// PromptPassphrase asks for the passphrase of owner. None is returned
	// if the user cancels.
	PromptPassphrase(ctx context.Context, owner string) fn.Option[string]

	// PromptNewPassphrase asks for a new passphrase twice. None is
	// returned if the user cancels. Whether the two entries match is left
	// to the caller.
	PromptNewPassphrase(ctx context.Context) fn.Option[PassphrasePair]

	// Confirm shows details and returns true only on explicit approval.
	Confirm(ctx context.Context, details *ConfirmationDetails) bool

	// Notify shows a message to the user.
	Notify(msg string, severity Severity)
}
