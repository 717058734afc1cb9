package session

import (
	"errors"
	"sync"
)

var (
	// ErrNotUnlocked is returned when a secret dependent operation is
	// attempted while the session is not unlocked.
	ErrNotUnlocked = errors.New("session not unlocked")

	// ErrUnlockInProgress is returned when another unlock attempt is
	// already running.
	ErrUnlockInProgress = errors.New("unlock already in progress")

	// ErrAlreadyUnlocked is returned by BeginUnlock when the session holds
	// a verified secret.
	ErrAlreadyUnlocked = errors.New("session already unlocked")

	// ErrStaleTicket is returned when an unlock attempt or an install is
	// completed after the session was locked or otherwise transitioned
	// underneath it.
	ErrStaleTicket = errors.New("unlock attempt superseded")

	// ErrEmptySecret is returned when an empty secret is installed.
	ErrEmptySecret = errors.New("empty secret")
)

// State is the lifecycle state of a Session.
type State uint8

const (
	// StateLocked means no secret is held.
	StateLocked State = iota

	// StateUnlocking means an unlock attempt is in flight. No secret is
	// held until the attempt completes.
	StateUnlocking

	// StateUnlocked means a verified secret is held.
	StateUnlocked
)

// String returns a human readable name for the state.
func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateUnlocking:
		return "unlocking"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Ticket identifies one unlock attempt. It is only valid for the epoch in
// which it was issued.
type Ticket struct {
	epoch uint64
}

// Session is the single owner of the stretched secret. The secret is lent to
// callers through WithSecret and never handed out for retention. Every
// transition that drops the secret wipes its bytes.
type Session struct {
	mu sync.RWMutex

	state  State
	secret []byte

	// epoch is bumped on every transition so that a completing unlock can
	// detect that it was superseded by a lock.
	epoch uint64
}

// New creates an empty, locked session.
func New() *Session {
	return &Session{}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// IsUnlocked returns true if a verified secret is held.
func (s *Session) IsUnlocked() bool {
	return s.State() == StateUnlocked
}

// BeginUnlock moves a locked session into StateUnlocking. Only one attempt
// may be in flight at a time.
func (s *Session) BeginUnlock() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUnlocking:
		return Ticket{}, ErrUnlockInProgress

	case StateUnlocked:
		return Ticket{}, ErrAlreadyUnlocked
	}

	s.epoch++
	s.state = StateUnlocking
	log.Debugf("Unlock attempt started (epoch=%d)", s.epoch)

	return Ticket{epoch: s.epoch}, nil
}

// CompleteUnlock stores a verified secret and moves the session to
// StateUnlocked. The session takes ownership of secret. If the ticket is
// stale the secret is wiped and ErrStaleTicket is returned.
func (s *Session) CompleteUnlock(t Ticket, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(secret) == 0 {
		return ErrEmptySecret
	}

	if s.state != StateUnlocking || s.epoch != t.epoch {
		wipe(secret)
		return ErrStaleTicket
	}

	s.epoch++
	s.secret = secret
	s.state = StateUnlocked
	log.Infof("Session unlocked")

	return nil
}

// AbortUnlock returns an unlocking session to StateLocked. It is a no-op for
// stale tickets.
func (s *Session) AbortUnlock(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnlocking || s.epoch != t.epoch {
		return
	}

	s.epoch++
	s.state = StateLocked
	log.Infof("Unlock attempt aborted")
}

// BeginInstall starts the creation of a new wallet. The returned ticket
// becomes stale if the session is locked or unlocked before Install is
// called. It fails while an unlock is in flight.
func (s *Session) BeginInstall() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUnlocking {
		return Ticket{}, ErrUnlockInProgress
	}

	return Ticket{epoch: s.epoch}, nil
}

// Install stores a secret without prior verification. It is used when a new
// wallet is created and there is nothing to verify against. A secret already
// held is wiped and replaced. The session takes ownership of secret; it is
// wiped if the ticket is stale or an unlock is in flight.
func (s *Session) Install(t Ticket, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(secret) == 0 {
		return ErrEmptySecret
	}

	switch {
	case s.state == StateUnlocking:
		wipe(secret)
		return ErrUnlockInProgress

	case s.epoch != t.epoch:
		wipe(secret)
		return ErrStaleTicket
	}

	wipe(s.secret)
	s.epoch++
	s.secret = secret
	s.state = StateUnlocked
	log.Infof("New wallet secret installed")

	return nil
}

// Lock wipes any held secret and moves the session to StateLocked. An
// in-flight unlock attempt is invalidated.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	wipe(s.secret)
	s.secret = nil
	s.epoch++
	s.state = StateLocked
	log.Infof("Session locked")
}

// WithSecret lends the secret to f. The read lock is held for the duration
// of f, so a concurrent Lock waits until f returns and is visible to every
// call started after it. f must not retain the slice.
func (s *Session) WithSecret(f func(secret []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateUnlocked {
		return ErrNotUnlocked
	}

	return f(s.secret)
}

// wipe overwrites b with zeros.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
