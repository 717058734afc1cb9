package wallet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrMissingUtxo is returned when an input carries no information
	// about the output it spends.
	ErrMissingUtxo = errors.New("input is missing its previous output")

	// ErrUtxoMismatch is returned when a non-witness UTXO does not match
	// the outpoint spent by the input.
	ErrUtxoMismatch = errors.New("previous transaction does not match " +
		"outpoint")

	// ErrNegativeFee is returned when the outputs spend more than the
	// inputs provide.
	ErrNegativeFee = errors.New("outputs exceed inputs")

	// ErrBadFeeRecord is returned when the reported fee record is
	// malformed.
	ErrBadFeeRecord = errors.New("malformed fee record")

	// ErrInvalidAmount is returned when an output value or a sum of them
	// lies outside the range of valid bitcoin amounts.
	ErrInvalidAmount = errors.New("amount out of range")
)

// psbtMagic is the binary prefix of every serialized PSBT.
var psbtMagic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

// feeRecordKey is the key of the proprietary global record that carries the
// network fee reported by the server: type 0xfc, the length prefixed
// identifier "keyoracle" and subtype 0x00.
var feeRecordKey = append(
	append([]byte{0xfc, 0x09}, []byte("keyoracle")...), 0x00,
)

// Packet is an unsigned transaction proposed by the server. It wraps a PSBT
// whose inputs carry the outputs they spend.
type Packet struct {
	pkt *psbt.Packet
}

// ParsePacket decodes raw as a PSBT in binary or base64 encoding.
func ParsePacket(raw []byte) (*Packet, error) {
	b64 := !bytes.HasPrefix(raw, psbtMagic)

	pkt, err := psbt.NewFromRawBytes(bytes.NewReader(raw), b64)
	if err != nil {
		return nil, fmt.Errorf("unable to decode psbt: %w", err)
	}

	return &Packet{pkt: pkt}, nil
}

// NewPacket creates a packet around an unsigned transaction. The previous
// outputs of every input still need to be attached with AddNonWitnessUtxo
// or AddWitnessUtxo.
func NewPacket(tx *wire.MsgTx) (*Packet, error) {
	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}

	return &Packet{pkt: pkt}, nil
}

// UnsignedTx returns the unsigned transaction of the packet.
func (p *Packet) UnsignedTx() *wire.MsgTx {
	return p.pkt.UnsignedTx
}

// Outputs returns the outputs of the unsigned transaction.
func (p *Packet) Outputs() []*wire.TxOut {
	return p.pkt.UnsignedTx.TxOut
}

// NumInputs returns the number of inputs.
func (p *Packet) NumInputs() int {
	return len(p.pkt.UnsignedTx.TxIn)
}

// AddNonWitnessUtxo attaches the full previous transaction of a legacy
// input.
func (p *Packet) AddNonWitnessUtxo(idx int, prevTx *wire.MsgTx) error {
	u, err := psbt.NewUpdater(p.pkt)
	if err != nil {
		return err
	}

	return u.AddInNonWitnessUtxo(prevTx, idx)
}

// AddWitnessUtxo attaches the previous output of a segwit input.
func (p *Packet) AddWitnessUtxo(idx int, prevOut *wire.TxOut) error {
	u, err := psbt.NewUpdater(p.pkt)
	if err != nil {
		return err
	}

	return u.AddInWitnessUtxo(prevOut, idx)
}

// PrevOutput returns the output spent by input idx.
func (p *Packet) PrevOutput(idx int) (*wire.TxOut, error) {
	if idx < 0 || idx >= p.NumInputs() {
		return nil, fmt.Errorf("input %d out of range", idx)
	}

	pInput := p.pkt.Inputs[idx]
	if pInput.WitnessUtxo != nil {
		return pInput.WitnessUtxo, nil
	}
	if pInput.NonWitnessUtxo == nil {
		return nil, fmt.Errorf("input %d: %w", idx, ErrMissingUtxo)
	}

	outpoint := p.pkt.UnsignedTx.TxIn[idx].PreviousOutPoint
	prevTx := pInput.NonWitnessUtxo
	if prevTx.TxHash() != outpoint.Hash ||
		int(outpoint.Index) >= len(prevTx.TxOut) {

		return nil, fmt.Errorf("input %d: %w", idx, ErrUtxoMismatch)
	}

	return prevTx.TxOut[outpoint.Index], nil
}

// PrevOutFetcher returns a fetcher over the previous outputs of all inputs.
func (p *Packet) PrevOutFetcher() (txscript.PrevOutputFetcher, error) {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, p.NumInputs())
	for i, txIn := range p.pkt.UnsignedTx.TxIn {
		prevOut, err := p.PrevOutput(i)
		if err != nil {
			return nil, err
		}
		prevOuts[txIn.PreviousOutPoint] = prevOut
	}

	return txscript.NewMultiPrevOutFetcher(prevOuts), nil
}

// ReportedFee returns the network fee as reported by the server. The fee
// record is used when present, otherwise the fee is the difference between
// the attached previous outputs and the outputs. Neither is verified.
func (p *Packet) ReportedFee() (btcutil.Amount, error) {
	for _, u := range p.pkt.Unknowns {
		if !bytes.Equal(u.Key, feeRecordKey) {
			continue
		}
		if len(u.Value) != 8 {
			return 0, ErrBadFeeRecord
		}

		fee := binary.LittleEndian.Uint64(u.Value)
		if fee > btcutil.MaxSatoshi {
			return 0, ErrBadFeeRecord
		}

		return btcutil.Amount(fee), nil
	}

	var in, out int64
	for i := 0; i < p.NumInputs(); i++ {
		prevOut, err := p.PrevOutput(i)
		if err != nil {
			return 0, err
		}

		in, err = addAmount(in, prevOut.Value)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}
	}
	for i, txOut := range p.Outputs() {
		var err error
		out, err = addAmount(out, txOut.Value)
		if err != nil {
			return 0, fmt.Errorf("output %d: %w", i, err)
		}
	}
	if out > in {
		return 0, ErrNegativeFee
	}

	return btcutil.Amount(in - out), nil
}

// addAmount adds value to total. Both the value and the result must be valid
// bitcoin amounts.
func addAmount(total, value int64) (int64, error) {
	if value < 0 || value > btcutil.MaxSatoshi {
		return 0, ErrInvalidAmount
	}

	total += value
	if total > btcutil.MaxSatoshi {
		return 0, ErrInvalidAmount
	}

	return total, nil
}

// SetReportedFee stores fee in the fee record, replacing a previous one.
func (p *Packet) SetReportedFee(fee btcutil.Amount) {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, uint64(fee))

	for _, u := range p.pkt.Unknowns {
		if bytes.Equal(u.Key, feeRecordKey) {
			u.Value = value
			return
		}
	}

	key := make([]byte, len(feeRecordKey))
	copy(key, feeRecordKey)
	p.pkt.Unknowns = append(p.pkt.Unknowns, &psbt.Unknown{
		Key:   key,
		Value: value,
	})
}

// AddInputSignature adds a partial signature for input idx. sig must carry
// the sighash type as its last byte.
func (p *Packet) AddInputSignature(idx int, sig, pubKey []byte) error {
	u, err := psbt.NewUpdater(p.pkt)
	if err != nil {
		return err
	}

	outcome, err := u.Sign(idx, sig, pubKey, nil, nil)
	if err != nil {
		return fmt.Errorf("input %d: %w", idx, err)
	}
	if outcome == psbt.SignInvalid {
		return fmt.Errorf("input %d: signature rejected", idx)
	}

	return nil
}

// Finalize builds the final scripts of every input and extracts the network
// ready transaction.
func (p *Packet) Finalize() (*wire.MsgTx, error) {
	if err := psbt.MaybeFinalizeAll(p.pkt); err != nil {
		return nil, fmt.Errorf("unable to finalize: %w", err)
	}

	return psbt.Extract(p.pkt)
}

// Serialize encodes the packet in binary PSBT format.
func (p *Packet) Serialize() ([]byte, error) {
	var b bytes.Buffer
	if err := p.pkt.Serialize(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// B64Encode encodes the packet in base64 PSBT format.
func (p *Packet) B64Encode() (string, error) {
	return p.pkt.B64Encode()
}
