package session

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSecret() []byte {
	return bytes.Repeat([]byte{0xab}, 64)
}

// TestUnlockLifecycle walks through the happy path and lock.
func TestUnlockLifecycle(t *testing.T) {
	t.Parallel()

	s := New()
	require.Equal(t, StateLocked, s.State())
	require.ErrorIs(t, s.WithSecret(func([]byte) error {
		return nil
	}), ErrNotUnlocked)

	ticket, err := s.BeginUnlock()
	require.NoError(t, err)
	require.Equal(t, StateUnlocking, s.State())

	// Secret dependent operations stay closed while unlocking.
	require.ErrorIs(t, s.WithSecret(func([]byte) error {
		return nil
	}), ErrNotUnlocked)

	secret := testSecret()
	require.NoError(t, s.CompleteUnlock(ticket, secret))
	require.True(t, s.IsUnlocked())

	var seen []byte
	require.NoError(t, s.WithSecret(func(b []byte) error {
		seen = append([]byte{}, b...)
		return nil
	}))
	require.Equal(t, testSecret(), seen)

	_, err = s.BeginUnlock()
	require.ErrorIs(t, err, ErrAlreadyUnlocked)

	s.Lock()
	require.Equal(t, StateLocked, s.State())
	require.Equal(t, make([]byte, 64), secret, "secret not wiped")
}

// TestConcurrentUnlockSerialized checks that only one attempt may run.
func TestConcurrentUnlockSerialized(t *testing.T) {
	t.Parallel()

	s := New()

	const attempts = 16

	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.BeginUnlock()
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var granted int
	for err := range errs {
		if err == nil {
			granted++
			continue
		}
		require.ErrorIs(t, err, ErrUnlockInProgress)
	}
	require.Equal(t, 1, granted)
}

// TestLockDuringUnlock asserts that a lock supersedes an in-flight attempt
// and that the late secret is wiped.
func TestLockDuringUnlock(t *testing.T) {
	t.Parallel()

	s := New()
	ticket, err := s.BeginUnlock()
	require.NoError(t, err)

	s.Lock()

	secret := testSecret()
	require.ErrorIs(t, s.CompleteUnlock(ticket, secret), ErrStaleTicket)
	require.Equal(t, make([]byte, 64), secret)
	require.Equal(t, StateLocked, s.State())

	// A stale abort must not disturb a newer attempt.
	next, err := s.BeginUnlock()
	require.NoError(t, err)
	s.AbortUnlock(ticket)
	require.Equal(t, StateUnlocking, s.State())
	s.AbortUnlock(next)
	require.Equal(t, StateLocked, s.State())
}

// TestInstall covers the unverified install path used for new wallets.
func TestInstall(t *testing.T) {
	t.Parallel()

	s := New()
	ticket, err := s.BeginInstall()
	require.NoError(t, err)
	require.ErrorIs(t, s.Install(ticket, nil), ErrEmptySecret)

	first := testSecret()
	require.NoError(t, s.Install(ticket, first))
	require.True(t, s.IsUnlocked())

	// Installing moved the epoch, so the old ticket is spent.
	spent := bytes.Repeat([]byte{0x02}, 64)
	require.ErrorIs(t, s.Install(ticket, spent), ErrStaleTicket)
	require.Equal(t, make([]byte, 64), spent)

	ticket, err = s.BeginInstall()
	require.NoError(t, err)
	second := bytes.Repeat([]byte{0x01}, 64)
	require.NoError(t, s.Install(ticket, second))
	require.Equal(t, make([]byte, 64), first, "old secret not wiped")

	s.Lock()
	_, err = s.BeginUnlock()
	require.NoError(t, err)

	_, err = s.BeginInstall()
	require.ErrorIs(t, err, ErrUnlockInProgress)

	third := testSecret()
	require.ErrorIs(t, s.Install(ticket, third), ErrUnlockInProgress)
	require.Equal(t, make([]byte, 64), third)
}

// TestLockDuringInstall asserts that a lock between BeginInstall and Install
// wins and the late secret is wiped.
func TestLockDuringInstall(t *testing.T) {
	t.Parallel()

	s := New()
	ticket, err := s.BeginInstall()
	require.NoError(t, err)

	s.Lock()

	secret := testSecret()
	require.ErrorIs(t, s.Install(ticket, secret), ErrStaleTicket)
	require.Equal(t, make([]byte, 64), secret)
	require.Equal(t, StateLocked, s.State())
}

// TestStateString covers the state names.
func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "locked", StateLocked.String())
	require.Equal(t, "unlocking", StateUnlocking.String())
	require.Equal(t, "unlocked", StateUnlocked.String())
	require.Equal(t, "unknown", State(9).String())
}
