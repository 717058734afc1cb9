package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ErrUnsupportedInput is returned for inputs whose script cannot be spent by
// a single signature with a partial signature record.
var ErrUnsupportedInput = errors.New("unsupported input script")

// SignDescriptor houses everything needed to sign one input.
type SignDescriptor struct {
	// Match is the owning key of the spent output.
	Match *Match

	// Output is the output being spent.
	Output *wire.TxOut

	// SigHashes caches the segwit sighash midstate of the transaction.
	SigHashes *txscript.TxSigHashes

	// InputIndex is the index of the input within the transaction.
	InputIndex int
}

// InputSigner produces input signatures.
type InputSigner interface {
	// SignInput returns a signature over tx for the input described by
	// desc, with the sighash type appended.
	SignInput(tx *wire.MsgTx, desc *SignDescriptor) ([]byte, error)
}

// SigHashSigner signs whole transactions only, using SIGHASH_ALL.
type SigHashSigner struct{}

// A compile time check to ensure SigHashSigner implements the InputSigner
// interface.
var _ InputSigner = (*SigHashSigner)(nil)

// SignInput implements InputSigner.
func (s *SigHashSigner) SignInput(tx *wire.MsgTx,
	desc *SignDescriptor) ([]byte, error) {

	privKey := desc.Match.Key.PrivKey
	if privKey == nil {
		return nil, fmt.Errorf("input %d: missing private key",
			desc.InputIndex)
	}

	switch desc.Match.Kind {
	case KindP2PKH:
		return txscript.RawTxInSignature(
			tx, desc.InputIndex, desc.Output.PkScript,
			txscript.SigHashAll, privKey,
		)

	case KindP2WPKH:
		return txscript.RawTxInWitnessSignature(
			tx, desc.SigHashes, desc.InputIndex, desc.Output.Value,
			desc.Output.PkScript, txscript.SigHashAll, privKey,
		)

	default:
		return nil, fmt.Errorf("input %d: %w: %v", desc.InputIndex,
			ErrUnsupportedInput, desc.Match.Kind)
	}
}
