package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/keyoracle/keyoracle/keychain"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ScriptKind is the shape of an owned output script.
type ScriptKind uint8

const (
	// KindP2PKH pays to the hash of a public key.
	KindP2PKH ScriptKind = iota

	// KindP2WPKH pays to the hash of a compressed public key in a segwit
	// v0 program.
	KindP2WPKH

	// KindP2PK pays to a bare public key.
	KindP2PK
)

// String returns the name of the script kind.
func (k ScriptKind) String() string {
	switch k {
	case KindP2PKH:
		return "p2pkh"
	case KindP2WPKH:
		return "p2wpkh"
	case KindP2PK:
		return "p2pk"
	default:
		return "unknown"
	}
}

// Match describes how an output script is owned by a key.
type Match struct {
	// Key is the owning keypair.
	Key *keychain.KeyPair

	// PubKey is the serialization of the public key the script commits
	// to.
	PubKey []byte

	// Kind is the script shape.
	Kind ScriptKind
}

// Scratch is a throwaway ownership context built for one request. It knows
// every output script the registered keys can be paid with.
type Scratch struct {
	netParams *chaincfg.Params

	keys    []*keychain.KeyPair
	scripts map[string]*Match
}

// NewScratch creates an empty ownership context.
func NewScratch(netParams *chaincfg.Params) *Scratch {
	return &Scratch{
		netParams: netParams,
		scripts:   make(map[string]*Match),
	}
}

// AddKey registers key. Both the uncompressed and the compressed
// serialization are recognized, segwit only for the compressed one.
func (s *Scratch) AddKey(key *keychain.KeyPair) error {
	uncompressed := key.PubKey.SerializeUncompressed()
	compressed := key.PubKey.SerializeCompressed()

	type candidate struct {
		addr   btcutil.Address
		pubKey []byte
		kind   ScriptKind
	}
	var candidates []candidate

	for _, pub := range [][]byte{uncompressed, compressed} {
		pkh, err := btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(pub), s.netParams,
		)
		if err != nil {
			return err
		}
		pk, err := btcutil.NewAddressPubKey(pub, s.netParams)
		if err != nil {
			return err
		}

		candidates = append(
			candidates,
			candidate{addr: pkh, pubKey: pub, kind: KindP2PKH},
			candidate{addr: pk, pubKey: pub, kind: KindP2PK},
		)
	}

	wpkh, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(compressed), s.netParams,
	)
	if err != nil {
		return err
	}
	candidates = append(candidates, candidate{
		addr: wpkh, pubKey: compressed, kind: KindP2WPKH,
	})

	for _, c := range candidates {
		script, err := txscript.PayToAddrScript(c.addr)
		if err != nil {
			return err
		}

		s.scripts[string(script)] = &Match{
			Key:    key,
			PubKey: c.pubKey,
			Kind:   c.kind,
		}
	}
	s.keys = append(s.keys, key)

	return nil
}

// Match returns how pkScript is owned, if it is.
func (s *Scratch) Match(pkScript []byte) fn.Option[*Match] {
	m, ok := s.scripts[string(pkScript)]
	if !ok {
		return fn.None[*Match]()
	}

	return fn.Some(m)
}

// IsMine returns true if pkScript pays to one of the registered keys.
func (s *Scratch) IsMine(pkScript []byte) bool {
	return s.Match(pkScript).IsSome()
}

// NumKeys returns the number of registered keys.
func (s *Scratch) NumKeys() int {
	return len(s.keys)
}

// Zero zeroes every registered private key and forgets all scripts.
func (s *Scratch) Zero() {
	for _, key := range s.keys {
		key.Zero()
	}
	s.keys = nil
	s.scripts = make(map[string]*Match)
}
