package keychain

import (
	"crypto/sha512"
	"errors"
)

const (
	// DefaultStretchIterations is the number of SHA-512 rounds applied to
	// the passphrase input in production. The cost is paid once per unlock
	// and reused for every key derived during the session.
	DefaultStretchIterations = 1500000

	// StretchedSecretSize is the length of a stretched secret.
	StretchedSecretSize = sha512.Size
)

// ErrZeroIterations is returned when a Stretcher is configured with no
// rounds.
var ErrZeroIterations = errors.New("stretch iterations must be positive")

// Stretcher turns a low entropy passphrase input into a secret by applying
// SHA-512 to its own output a fixed number of times.
type Stretcher struct {
	iterations uint32
}

// NewStretcher returns a stretcher performing the given number of rounds.
func NewStretcher(iterations uint32) (*Stretcher, error) {
	if iterations == 0 {
		return nil, ErrZeroIterations
	}

	return &Stretcher{iterations: iterations}, nil
}

// Iterations returns the configured number of rounds.
func (s *Stretcher) Iterations() uint32 {
	return s.iterations
}

// Stretch returns SHA512^n(input), where n is the configured number of
// rounds. The returned slice is owned by the caller, who is expected to wipe
// it when done.
func (s *Stretcher) Stretch(input []byte) []byte {
	digest := sha512.Sum512(input)
	for i := uint32(1); i < s.iterations; i++ {
		digest = sha512.Sum512(digest[:])
	}

	secret := make([]byte, StretchedSecretSize)
	copy(secret, digest[:])
	zero(digest[:])

	return secret
}

// PassphraseInput builds the stretch input for an account, the UTF-8 bytes
// of email followed by passphrase.
func PassphraseInput(email, passphrase string) []byte {
	input := make([]byte, 0, len(email)+len(passphrase))
	input = append(input, email...)
	input = append(input, passphrase...)

	return input
}
