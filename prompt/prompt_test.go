package prompt

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestPassphrasePairMatches checks the double entry rule.
func TestPassphrasePairMatches(t *testing.T) {
	t.Parallel()

	require.True(t, PassphrasePair{"a", "a"}.Matches())
	require.False(t, PassphrasePair{"a", "b"}.Matches())
	require.False(t, PassphrasePair{"", ""}.Matches())
}

// TestConfirmationDetailsString checks that the change line is only
// rendered when present.
func TestConfirmationDetailsString(t *testing.T) {
	t.Parallel()

	details := &ConfirmationDetails{
		Owner:      "alice",
		Recipient:  "1BoatSLRHtKNngkdXEeobR76b53LETtpyT",
		Amount:     btcutil.Amount(100_000),
		NetworkFee: btcutil.Amount(1_000),
		ServiceFee: btcutil.Amount(500),
		Change:     fn.None[btcutil.Amount](),
		Total:      btcutil.Amount(100_500),
	}

	out := details.String()
	require.Contains(t, out, "alice")
	require.Contains(t, out, "Amount:        0.00100000 BTC")
	require.Contains(t, out, "reported by the server")
	require.NotContains(t, out, "Change")

	details.Change = fn.Some(btcutil.Amount(2_000))
	require.Contains(t, details.String(), "Change:        0.00002000 BTC")
}

// TestTerminalConfirm drives Terminal through an in-memory reader.
func TestTerminalConfirm(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	term := &Terminal{
		fd:  -1,
		in:  bufio.NewReader(strings.NewReader("yes\nno\n")),
		out: &out,
	}

	details := &ConfirmationDetails{Recipient: "addr"}
	ctx := context.Background()
	require.True(t, term.Confirm(ctx, details))
	require.False(t, term.Confirm(ctx, details))

	// Input is exhausted, so a further prompt is a refusal.
	require.False(t, term.Confirm(ctx, details))
	require.Contains(t, out.String(), "Recipient:     addr")
}

// TestTerminalPassphrase reads passphrases from a non terminal reader.
func TestTerminalPassphrase(t *testing.T) {
	t.Parallel()

	term := &Terminal{
		fd:  -1,
		in:  bufio.NewReader(strings.NewReader("hunter2\nx\nx\n")),
		out: &bytes.Buffer{},
	}

	ctx := context.Background()
	pass := term.PromptPassphrase(ctx, "bob")
	require.Equal(t, fn.Some("hunter2"), pass)

	pair := term.PromptNewPassphrase(ctx)
	require.Equal(t, fn.Some(PassphrasePair{"x", "x"}), pair)

	require.True(t, term.PromptPassphrase(ctx, "").IsNone())
}

// TestTerminalCancelled checks that a done context aborts a prompt.
func TestTerminalCancelled(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	term := &Terminal{
		fd:  -1,
		in:  bufio.NewReader(pr),
		out: &bytes.Buffer{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.True(t, term.PromptPassphrase(ctx, "").IsNone())
}

// TestTerminalPendingRead checks that the line read on behalf of a cancelled
// prompt answers the next prompt.
func TestTerminalPendingRead(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	term := &Terminal{
		fd:  -1,
		in:  bufio.NewReader(pr),
		out: &bytes.Buffer{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, term.PromptPassphrase(ctx, "").IsNone())

	go func() {
		_, _ = io.WriteString(pw, "first\nsecond\n")
	}()

	pass := term.PromptPassphrase(context.Background(), "bob")
	require.Equal(t, fn.Some("first"), pass)

	pass = term.PromptPassphrase(context.Background(), "bob")
	require.Equal(t, fn.Some("second"), pass)
}

// TestMockScript checks that Mock consumes its script in order.
func TestMockScript(t *testing.T) {
	t.Parallel()

	m := &Mock{
		Passphrases:   []fn.Option[string]{fn.Some("a")},
		Confirmations: []bool{true},
	}
	ctx := context.Background()

	require.Equal(t, fn.Some("a"), m.PromptPassphrase(ctx, ""))
	require.True(t, m.PromptPassphrase(ctx, "").IsNone())
	require.True(t, m.PromptNewPassphrase(ctx).IsNone())
	require.True(t, m.Confirm(ctx, &ConfirmationDetails{}))
	require.False(t, m.Confirm(ctx, &ConfirmationDetails{}))
	require.Len(t, m.Shown, 2)

	m.Notify("hello", SeverityWarning)
	require.Equal(t, []string{"hello"}, m.Messages())
	require.Equal(t, "warning", m.Notifications[0].Severity.String())
}
