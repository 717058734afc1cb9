package keychain

import (
	"crypto/sha256"
	"errors"
	"sync"
)

// stateSize is the length of the iterative state carried between output
// bytes. It is one byte shorter than a SHA-256 digest, the final digest byte
// being the emitted output.
const stateSize = sha256.Size - 1

// ErrUnsupported is returned by every ByteStream operation other than reading
// bytes. The stream exists solely to feed the deterministic keypair generator,
// so any request for general purpose randomness is a programming error.
var ErrUnsupported = errors.New("operation not supported by deterministic " +
	"byte stream")

// ByteStream is a hash ratchet producing an unbounded byte sequence that is
// fully determined by its root seed. For every output byte it computes
// digest = SHA256(rootSeed || state), keeps digest[:31] as the next state and
// emits digest[31].
//
// ByteStream implements io.Reader and is safe for concurrent use, although
// concurrent readers will observe interleaved portions of one sequence.
type ByteStream struct {
	mu sync.Mutex

	rootSeed []byte
	state    [stateSize]byte
}

// NewByteStream creates a stream from the given seed. The seed is copied, so
// the caller may wipe its own buffer once the stream is created.
func NewByteStream(seed []byte) *ByteStream {
	rootSeed := make([]byte, len(seed))
	copy(rootSeed, seed)

	return &ByteStream{
		rootSeed: rootSeed,
	}
}

// Read fills p entirely with the next len(p) bytes of the sequence. It never
// returns an error.
func (s *ByteStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range p {
		p[i] = s.nextByte()
	}

	return len(p), nil
}

// nextByte advances the ratchet by one step. The mutex must be held.
func (s *ByteStream) nextByte() byte {
	h := sha256.New()
	h.Write(s.rootSeed)
	h.Write(s.state[:])

	var digest [sha256.Size]byte
	h.Sum(digest[:0])

	copy(s.state[:], digest[:stateSize])
	out := digest[stateSize]

	zero(digest[:])

	return out
}

// Wipe zeroes the root seed and the iterative state. The stream must not be
// read afterwards.
func (s *ByteStream) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	zero(s.rootSeed)
	zero(s.state[:])
	s.rootSeed = nil
}

// Reseed always fails. Changing the seed would break reproducibility.
func (s *ByteStream) Reseed([]byte) error {
	return ErrUnsupported
}

// GenerateSeed always fails.
func (s *ByteStream) GenerateSeed(int) ([]byte, error) {
	return nil, ErrUnsupported
}

// Uint32 always fails.
func (s *ByteStream) Uint32() (uint32, error) {
	return 0, ErrUnsupported
}

// Uint64 always fails.
func (s *ByteStream) Uint64() (uint64, error) {
	return 0, ErrUnsupported
}

// Intn always fails.
func (s *ByteStream) Intn(int) (int, error) {
	return 0, ErrUnsupported
}

// Bool always fails.
func (s *ByteStream) Bool() (bool, error) {
	return false, ErrUnsupported
}

// Float64 always fails.
func (s *ByteStream) Float64() (float64, error) {
	return 0, ErrUnsupported
}

// NormFloat64 always fails.
func (s *ByteStream) NormFloat64() (float64, error) {
	return 0, ErrUnsupported
}

// zero overwrites b with zeros.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
