package keychain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidAddress is returned when an address cannot be decoded for the
// active network.
var ErrInvalidAddress = errors.New("invalid address")

// SecretSource lends the current stretched secret to a callback. The secret
// must not be retained once the callback returns. Implementations fail when
// no secret is available.
type SecretSource interface {
	WithSecret(func(secret []byte) error) error
}

// KeyRing derives keypairs for server issued tokens.
type KeyRing interface {
	// DerivePubKeys returns the serialized public keys for tokens, in
	// input order.
	DerivePubKeys(tokens [][]byte) ([][]byte, error)

	// DeriveKeyPairs returns the keypairs for tokens, in input order. The
	// caller owns the private keys and must zero them.
	DeriveKeyPairs(tokens [][]byte) ([]*KeyPair, error)

	// IsAddressMine reports whether addr pays to the key derived from
	// token.
	IsAddressMine(addr string, token []byte) (bool, error)
}

// SessionKeyRing is a KeyRing that borrows the stretched secret from a
// SecretSource for the duration of each call.
type SessionKeyRing struct {
	secrets     SecretSource
	netParams   *chaincfg.Params
	tokenLength int

	// maxParallel bounds the number of concurrent derivations of a single
	// batch.
	maxParallel int
}

// A compile time check to ensure SessionKeyRing implements the KeyRing
// interface.
var _ KeyRing = (*SessionKeyRing)(nil)

// NewSessionKeyRing creates a key ring on top of secrets.
func NewSessionKeyRing(secrets SecretSource, netParams *chaincfg.Params,
	tokenLength, maxParallel int) *SessionKeyRing {

	if maxParallel < 1 {
		maxParallel = 1
	}

	return &SessionKeyRing{
		secrets:     secrets,
		netParams:   netParams,
		tokenLength: tokenLength,
		maxParallel: maxParallel,
	}
}

// DerivePubKeys returns the uncompressed public key for each token.
func (r *SessionKeyRing) DerivePubKeys(tokens [][]byte) ([][]byte, error) {
	keys, err := r.DeriveKeyPairs(tokens)
	if err != nil {
		return nil, err
	}

	pubKeys := make([][]byte, len(keys))
	for i, key := range keys {
		pubKeys[i] = key.SerializedPubKey()
		key.Zero()
	}

	return pubKeys, nil
}

// DeriveKeyPairs derives one keypair per token while holding a loan of the
// session secret. Derivations run in parallel, results keep input order.
func (r *SessionKeyRing) DeriveKeyPairs(tokens [][]byte) ([]*KeyPair, error) {
	for i, token := range tokens {
		if err := ValidateToken(token, r.tokenLength); err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
	}

	keys := make([]*KeyPair, len(tokens))
	err := r.secrets.WithSecret(func(secret []byte) error {
		var g errgroup.Group
		g.SetLimit(r.maxParallel)

		for i, token := range tokens {
			i, token := i, token
			g.Go(func() error {
				key, err := DeriveKeyPair(secret, token)
				if err != nil {
					return fmt.Errorf("token %d: %w", i,
						err)
				}
				keys[i] = key

				return nil
			})
		}

		return g.Wait()
	})
	if err != nil {
		for _, key := range keys {
			key.Zero()
		}

		return nil, err
	}

	log.Debugf("Derived %d keypairs", len(keys))

	return keys, nil
}

// IsAddressMine decodes addr for the active network and checks whether it
// pays to the key derived from token. Both the legacy uncompressed and the
// compressed key hash are accepted for P2PKH, segwit v0 requires the
// compressed one.
func (r *SessionKeyRing) IsAddressMine(addr string,
	token []byte) (bool, error) {

	decoded, err := btcutil.DecodeAddress(addr, r.netParams)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !decoded.IsForNet(r.netParams) {
		return false, fmt.Errorf("%w: %s is not for network %s",
			ErrInvalidAddress, addr, r.netParams.Name)
	}

	keys, err := r.DeriveKeyPairs([][]byte{token})
	if err != nil {
		return false, err
	}
	key := keys[0]
	defer key.Zero()

	hash := decoded.ScriptAddress()
	switch decoded.(type) {
	case *btcutil.AddressPubKeyHash:
		return bytes.Equal(hash, key.PubKeyHash()) ||
			bytes.Equal(hash, key.CompressedPubKeyHash()), nil

	case *btcutil.AddressWitnessPubKeyHash:
		return bytes.Equal(hash, key.CompressedPubKeyHash()), nil

	case *btcutil.AddressPubKey:
		return bytes.Equal(hash, key.SerializedPubKey()) ||
			bytes.Equal(hash, key.PubKey.SerializeCompressed()),
			nil

	default:
		return false, nil
	}
}
