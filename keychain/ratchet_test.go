package keychain

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// referenceStream recomputes the ratchet output step by step.
func referenceStream(seed []byte, n int) []byte {
	var state [stateSize]byte
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		digest := sha256.Sum256(append(append([]byte{}, seed...),
			state[:]...))
		copy(state[:], digest[:stateSize])
		out[i] = digest[sha256.Size-1]
	}

	return out
}

// TestByteStreamMatchesReference checks the stream against a direct
// computation of the ratchet.
func TestByteStreamMatchesReference(t *testing.T) {
	t.Parallel()

	seed := []byte("root seed for the ratchet")
	stream := NewByteStream(seed)

	got := make([]byte, 100)
	n, err := stream.Read(got)
	require.NoError(t, err)
	require.Equal(t, 100, n)
	require.Equal(t, referenceStream(seed, 100), got)
}

// TestByteStreamChunking asserts that the sequence does not depend on how
// the reads are split up.
func TestByteStreamChunking(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.SliceOfN(rapid.Byte(), 0, 128).Draw(t, "seed")
		split := rapid.IntRange(0, 64).Draw(t, "split")

		whole := make([]byte, 64)
		_, _ = NewByteStream(seed).Read(whole)

		stream := NewByteStream(seed)
		first := make([]byte, split)
		second := make([]byte, 64-split)
		_, _ = stream.Read(first)
		_, _ = stream.Read(second)

		if !bytes.Equal(whole, append(first, second...)) {
			t.Fatalf("chunked read diverged from single read")
		}
	})
}

// TestByteStreamSeedCopied ensures that wiping the caller's seed buffer does
// not alter the stream.
func TestByteStreamSeedCopied(t *testing.T) {
	t.Parallel()

	seed := []byte{1, 2, 3, 4}
	expected := referenceStream(seed, 16)

	stream := NewByteStream(seed)
	zero(seed)

	got := make([]byte, 16)
	_, _ = stream.Read(got)
	require.Equal(t, expected, got)
}

// TestByteStreamUnsupported asserts that every non byte oriented request is
// rejected.
func TestByteStreamUnsupported(t *testing.T) {
	t.Parallel()

	stream := NewByteStream([]byte("seed"))

	require.ErrorIs(t, stream.Reseed([]byte("other")), ErrUnsupported)

	_, err := stream.GenerateSeed(8)
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = stream.Uint32()
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = stream.Uint64()
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = stream.Intn(10)
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = stream.Bool()
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = stream.Float64()
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = stream.NormFloat64()
	require.ErrorIs(t, err, ErrUnsupported)

	// None of the rejected calls may have advanced the ratchet.
	got := make([]byte, 8)
	_, _ = stream.Read(got)
	require.Equal(t, referenceStream([]byte("seed"), 8), got)
}
