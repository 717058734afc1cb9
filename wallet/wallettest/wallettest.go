// Package wallettest provides helpers to build and verify the transactions
// exchanged with the server in tests.
package wallettest

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/keyoracle/keyoracle/lnutils"
	"github.com/keyoracle/keyoracle/wallet"
	"github.com/stretchr/testify/require"
)

// Input describes an output that is spent by a test transaction.
type Input struct {
	// PkScript is the script of the spent output.
	PkScript []byte

	// Value is the value of the spent output.
	Value int64

	// Witness attaches the spent output as a witness UTXO instead of the
	// full previous transaction.
	Witness bool
}

// FundingTx returns a transaction whose output vout pays value to pkScript.
// The input is a dummy so that the transaction serializes unambiguously.
func FundingTx(pkScript []byte, value int64, seed byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{seed, 0xaa, 0xbb},
			Index: 1,
		},
		SignatureScript: []byte{txscript.OP_TRUE},
		Sequence:        wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(value, pkScript))

	return tx
}

// BuildPacket creates a packet spending inputs to outputs.
func BuildPacket(t *testing.T, inputs []Input,
	outputs []*wire.TxOut) *wallet.Packet {

	t.Helper()

	tx := wire.NewMsgTx(2)
	prevTxs := make([]*wire.MsgTx, len(inputs))
	for i, in := range inputs {
		prevTx := FundingTx(in.PkScript, in.Value, byte(i))
		prevTxs[i] = prevTx

		tx.AddTxIn(wire.NewTxIn(
			wire.NewOutPoint(lnutils.Ptr(prevTx.TxHash()), 0), nil, nil,
		))
	}
	for _, out := range outputs {
		tx.AddTxOut(out)
	}

	pkt, err := wallet.NewPacket(tx)
	require.NoError(t, err)

	for i, in := range inputs {
		if in.Witness {
			require.NoError(t, pkt.AddWitnessUtxo(
				i, prevTxs[i].TxOut[0],
			))
			continue
		}
		require.NoError(t, pkt.AddNonWitnessUtxo(i, prevTxs[i]))
	}

	return pkt
}

// P2PKHScript returns a pay to pubkey hash script for pubKey.
func P2PKHScript(t *testing.T, pubKey []byte) []byte {
	t.Helper()

	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(pubKey), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return script
}

// P2WPKHScript returns a segwit v0 pay to pubkey hash script for the
// compressed pubKey.
func P2WPKHScript(t *testing.T, pubKey []byte) []byte {
	t.Helper()

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubKey), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return script
}

// VerifyTx executes the scripts of every input of tx against the outputs it
// spends.
func VerifyTx(t *testing.T, tx *wire.MsgTx, prevOuts []*wire.TxOut) {
	t.Helper()

	require.Len(t, prevOuts, len(tx.TxIn))

	outs := make(map[wire.OutPoint]*wire.TxOut, len(prevOuts))
	for i, txIn := range tx.TxIn {
		outs[txIn.PreviousOutPoint] = prevOuts[i]
	}
	fetcher := txscript.NewMultiPrevOutFetcher(outs)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, prevOut := range prevOuts {
		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prevOut.Value, fetcher,
		)
		require.NoError(t, err)
		require.NoErrorf(t, vm.Execute(), "input %d", i)
	}
}
