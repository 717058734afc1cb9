package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/keyoracle/keyoracle/keychain"
	"github.com/keyoracle/keyoracle/lnutils"
	"github.com/keyoracle/keyoracle/prompt"
	"github.com/keyoracle/keyoracle/session"
	"github.com/keyoracle/keyoracle/wallet"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrPolicyViolation is the parent of every error caused by a
	// transaction shape the oracle refuses to sign.
	ErrPolicyViolation = errors.New("signing policy violation")

	// ErrOutputCount is returned for transactions that do not have
	// exactly two or three outputs.
	ErrOutputCount = fmt.Errorf("%w: transaction must have 2 or 3 "+
		"outputs", ErrPolicyViolation)

	// ErrForeignChange is returned when the change output does not pay to
	// one of the provided keys.
	ErrForeignChange = fmt.Errorf("%w: change output is not ours",
		ErrPolicyViolation)

	// ErrInvalidAmount is returned when an output value or the output
	// total is out of range.
	ErrInvalidAmount = fmt.Errorf("%w: output value out of range",
		ErrPolicyViolation)

	// ErrForeignInput is returned when an input spends an output that
	// none of the provided keys can sign for.
	ErrForeignInput = fmt.Errorf("%w: input is not ours",
		ErrPolicyViolation)

	// ErrUnknownRecipient is returned when the recipient output does not
	// pay to a single standard address.
	ErrUnknownRecipient = fmt.Errorf("%w: non-standard recipient",
		ErrPolicyViolation)

	// ErrDeclined is returned when the user refuses to sign.
	ErrDeclined = errors.New("user declined to sign")

	// ErrMalformedTx is returned when the transaction cannot be decoded
	// or is internally inconsistent.
	ErrMalformedTx = errors.New("malformed transaction")

	// ErrTokenCount is returned when key indices and tokens do not pair
	// up.
	ErrTokenCount = errors.New("key index and token counts differ")
)

const (
	minOutputs = 2
	maxOutputs = 3

	msgDeclined = "You declined to sign the transaction."
	msgOwned    = "You are the rightful owner of the address: "

	msgForeignChange = "WARNING! The change address for this " +
		"transaction is not yours! Signing aborted."

	msgNotOwned = "This key is either invalid, or not owned by this " +
		"wallet."
)

// Config houses the collaborators of the Authorizer.
type Config struct {
	// KeyRing derives the keys named by a signing request.
	KeyRing keychain.KeyRing

	// Signer produces the input signatures.
	Signer wallet.InputSigner

	// Prompter asks the user for confirmation.
	Prompter prompt.Prompter

	// NetParams is the active network.
	NetParams *chaincfg.Params

	// Owner is shown in the confirmation dialog.
	Owner string
}

// Authorizer validates server proposed transactions against the signing
// policy, asks the user for confirmation and signs them.
type Authorizer struct {
	cfg *Config
}

// New creates a new Authorizer.
func New(cfg *Config) *Authorizer {
	return &Authorizer{
		cfg: cfg,
	}
}

// Sign validates and signs the unsigned transaction rawTx. tokens are the
// tokens of the keys at keyIndices, which together must own every input and
// the change output. The serialized network transaction is returned. No
// signature is made unless every check passed and the user confirmed.
func (a *Authorizer) Sign(ctx context.Context, rawTx []byte,
	keyIndices []uint32, tokens [][]byte) ([]byte, error) {

	if len(keyIndices) != len(tokens) {
		return nil, fmt.Errorf("%w: %d indices, %d tokens",
			ErrTokenCount, len(keyIndices), len(tokens))
	}

	pkt, err := wallet.ParsePacket(rawTx)
	if err != nil {
		return nil, a.fail(fmt.Errorf("%w: %v", ErrMalformedTx, err))
	}

	log.Tracef("Signing request for keys %v: %v", keyIndices,
		lnutils.SpewLogClosure(pkt.UnsignedTx()))

	outputs := pkt.Outputs()
	if len(outputs) < minOutputs || len(outputs) > maxOutputs {
		return nil, a.fail(fmt.Errorf("%w: got %d", ErrOutputCount,
			len(outputs)))
	}

	var total int64
	for i, out := range outputs {
		if out.Value < 0 || out.Value > btcutil.MaxSatoshi {
			return nil, a.fail(fmt.Errorf("%w: output %d",
				ErrInvalidAmount, i))
		}
		total += out.Value
		if total > btcutil.MaxSatoshi {
			return nil, a.fail(fmt.Errorf("%w: total",
				ErrInvalidAmount))
		}
	}

	keys, err := a.cfg.KeyRing.DeriveKeyPairs(tokens)
	if err != nil {
		return nil, err
	}

	scratch := wallet.NewScratch(a.cfg.NetParams)
	defer scratch.Zero()
	for _, key := range keys {
		if err := scratch.AddKey(key); err != nil {
			for _, k := range keys {
				k.Zero()
			}

			return nil, err
		}
	}

	change := fn.None[btcutil.Amount]()
	if len(outputs) == maxOutputs {
		if !scratch.IsMine(outputs[2].PkScript) {
			log.Warnf("Refusing to sign transaction %v with foreign "+
				"change output", pkt.UnsignedTx().TxHash())
			a.cfg.Prompter.Notify(
				msgForeignChange, prompt.SeverityWarning,
			)

			return nil, ErrForeignChange
		}
		change = fn.Some(btcutil.Amount(outputs[2].Value))
	}

	recipient, err := a.recipientAddress(outputs[0].PkScript)
	if err != nil {
		return nil, a.fail(err)
	}

	fee, err := pkt.ReportedFee()
	if err != nil {
		return nil, a.fail(fmt.Errorf("%w: %v", ErrMalformedTx, err))
	}

	descs, err := a.signDescriptors(pkt, scratch)
	if err != nil {
		return nil, a.fail(err)
	}

	details := &prompt.ConfirmationDetails{
		Owner:      a.cfg.Owner,
		Recipient:  recipient,
		Amount:     btcutil.Amount(outputs[0].Value),
		NetworkFee: fee,
		ServiceFee: btcutil.Amount(outputs[1].Value),
		Change:     change,
		Total:      btcutil.Amount(total),
	}
	if !a.cfg.Prompter.Confirm(ctx, details) {
		a.cfg.Prompter.Notify(msgDeclined, prompt.SeverityWarning)
		return nil, ErrDeclined
	}

	tx := pkt.UnsignedTx()
	for _, desc := range descs {
		sig, err := a.cfg.Signer.SignInput(tx, desc)
		if err != nil {
			return nil, a.fail(fmt.Errorf("unable to sign input "+
				"%d: %w", desc.InputIndex, err))
		}

		err = pkt.AddInputSignature(
			desc.InputIndex, sig, desc.Match.PubKey,
		)
		if err != nil {
			return nil, a.fail(err)
		}
	}

	final, err := pkt.Finalize()
	if err != nil {
		return nil, a.fail(err)
	}

	var b bytes.Buffer
	if err := final.Serialize(&b); err != nil {
		return nil, a.fail(err)
	}

	log.Infof("Signed transaction %v with %d inputs", final.TxHash(),
		len(final.TxIn))

	return b.Bytes(), nil
}

// VerifyAddress checks whether addr pays to the key derived from token and
// tells the user the outcome.
func (a *Authorizer) VerifyAddress(addr string, token []byte) (bool, error) {
	mine, err := a.cfg.KeyRing.IsAddressMine(addr, token)
	switch {
	case errors.Is(err, session.ErrNotUnlocked):
		return false, err

	case err != nil:
		log.Debugf("Address verification of %v failed: %v", addr, err)

	case mine:
		a.cfg.Prompter.Notify(msgOwned+addr, prompt.SeverityInfo)
		return true, nil
	}

	a.cfg.Prompter.Notify(msgNotOwned, prompt.SeverityError)

	return false, err
}

// recipientAddress returns the address pkScript pays to. Only scripts with
// exactly one standard destination are accepted.
func (a *Authorizer) recipientAddress(pkScript []byte) (string, error) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(
		pkScript, a.cfg.NetParams,
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownRecipient, err)
	}

	switch class {
	case txscript.PubKeyHashTy, txscript.ScriptHashTy,
		txscript.WitnessV0PubKeyHashTy, txscript.WitnessV0ScriptHashTy,
		txscript.WitnessV1TaprootTy, txscript.PubKeyTy:

	default:
		return "", fmt.Errorf("%w: %v", ErrUnknownRecipient, class)
	}
	if len(addrs) != 1 {
		return "", ErrUnknownRecipient
	}

	return addrs[0].EncodeAddress(), nil
}

// signDescriptors resolves the owning key of every input. It fails before
// anything is signed if one of them cannot be spent by the provided keys.
func (a *Authorizer) signDescriptors(pkt *wallet.Packet,
	scratch *wallet.Scratch) ([]*wallet.SignDescriptor, error) {

	fetcher, err := pkt.PrevOutFetcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	sigHashes := txscript.NewTxSigHashes(pkt.UnsignedTx(), fetcher)

	descs := make([]*wallet.SignDescriptor, pkt.NumInputs())
	for i := range descs {
		prevOut, err := pkt.PrevOutput(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
		}

		match, err := scratch.Match(prevOut.PkScript).UnwrapOrErr(
			fmt.Errorf("%w: input %d", ErrForeignInput, i),
		)
		if err != nil {
			return nil, err
		}
		if match.Kind == wallet.KindP2PK {
			return nil, fmt.Errorf("input %d: %w", i,
				wallet.ErrUnsupportedInput)
		}

		descs[i] = &wallet.SignDescriptor{
			Match:      match,
			Output:     prevOut,
			SigHashes:  sigHashes,
			InputIndex: i,
		}
	}

	return descs, nil
}

// fail tells the user why signing was aborted and returns err.
func (a *Authorizer) fail(err error) error {
	log.Infof("Signing aborted: %v", err)

	severity := prompt.SeverityError
	if errors.Is(err, ErrPolicyViolation) {
		severity = prompt.SeverityWarning
	}
	a.cfg.Prompter.Notify(
		fmt.Sprintf("Signing aborted: %v", err), severity,
	)

	return err
}
