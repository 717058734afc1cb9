package keychain

import (
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// DefaultTokenLength is the length of a server issued token.
	DefaultTokenLength = 64

	// scalarSize is the number of stream bytes consumed per candidate
	// private key.
	scalarSize = 32

	// maxKeyGenAttempts bounds the number of candidate scalars read from
	// the stream. A candidate is rejected only if it is zero or not below
	// the curve order, which happens with probability ~2^-128.
	maxKeyGenAttempts = 128
)

var (
	// ErrKeyGenExhausted is returned when no valid scalar was found within
	// maxKeyGenAttempts candidates.
	ErrKeyGenExhausted = errors.New("unable to generate key from stream")

	// ErrEmptySecret is returned when derivation is attempted without a
	// stretched secret.
	ErrEmptySecret = errors.New("stretched secret is empty")

	// ErrInvalidToken is returned when a token does not have the expected
	// length.
	ErrInvalidToken = errors.New("invalid token")
)

// KeyPair is a secp256k1 keypair derived from a (stretched secret, token)
// pair.
type KeyPair struct {
	// PrivKey is the private scalar. It must be zeroed when the keypair is
	// no longer needed.
	PrivKey *btcec.PrivateKey

	// PubKey is the public point corresponding to PrivKey.
	PubKey *btcec.PublicKey
}

// SerializedPubKey returns the 65 byte uncompressed public key. This is the
// form the server records and compares against.
func (k *KeyPair) SerializedPubKey() []byte {
	return k.PubKey.SerializeUncompressed()
}

// PubKeyHash returns hash160 of the uncompressed public key, the form that
// appears in legacy addresses.
func (k *KeyPair) PubKeyHash() []byte {
	return btcutil.Hash160(k.SerializedPubKey())
}

// CompressedPubKeyHash returns hash160 of the compressed public key.
func (k *KeyPair) CompressedPubKeyHash() []byte {
	return btcutil.Hash160(k.PubKey.SerializeCompressed())
}

// Zero wipes the private key.
func (k *KeyPair) Zero() {
	if k != nil && k.PrivKey != nil {
		k.PrivKey.Zero()
	}
}

// ValidateToken checks that a token has exactly the expected length.
func ValidateToken(token []byte, expectedLen int) error {
	if len(token) != expectedLen {
		return fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidToken, expectedLen, len(token))
	}

	return nil
}

// DeriveKeyPair deterministically derives the keypair for a token. The seed
// secret || token drives a ByteStream which is the only entropy source of the
// key generator, so the result is a pure function of its inputs.
func DeriveKeyPair(secret, token []byte) (*KeyPair, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	seed := make([]byte, 0, len(secret)+len(token))
	seed = append(seed, secret...)
	seed = append(seed, token...)

	stream := NewByteStream(seed)
	zero(seed)
	defer stream.Wipe()

	return generateKey(stream)
}

// generateKey reads 32 byte big-endian candidates from r until one is a
// valid non-zero scalar below the curve order.
func generateKey(r io.Reader) (*KeyPair, error) {
	var candidate [scalarSize]byte
	defer zero(candidate[:])

	for i := 0; i < maxKeyGenAttempts; i++ {
		if _, err := io.ReadFull(r, candidate[:]); err != nil {
			return nil, fmt.Errorf("unable to read key material: "+
				"%w", err)
		}

		var scalar btcec.ModNScalar
		overflow := scalar.SetByteSlice(candidate[:])
		if overflow || scalar.IsZero() {
			scalar.Zero()
			log.Debugf("Rejected out of range scalar candidate %d",
				i)
			continue
		}
		scalar.Zero()

		privKey, pubKey := btcec.PrivKeyFromBytes(candidate[:])

		return &KeyPair{
			PrivKey: privKey,
			PubKey:  pubKey,
		}, nil
	}

	return nil, ErrKeyGenExhausted
}
