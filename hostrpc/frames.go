package hostrpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keyoracle/keyoracle/dispatcher"
	"github.com/keyoracle/keyoracle/lnutils"
)

// MethodStatus is answered synchronously with the session state.
const MethodStatus = "status"

var (
	// ErrUnknownMethod is returned for frames with an unsupported method.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrBadParams is returned when the params of a frame do not decode.
	ErrBadParams = errors.New("invalid params")
)

// HexBytes is a byte slice encoded as a hex string in JSON.
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = decoded

	return nil
}

func toBytes(hs []HexBytes) [][]byte {
	return lnutils.Map(hs, func(h HexBytes) []byte {
		return h
	})
}

func toHex(bs [][]byte) []HexBytes {
	return lnutils.Map(bs, func(b []byte) HexBytes {
		return b
	})
}

// RequestFrame is a request sent by the host.
type RequestFrame struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame is a response pushed to the host.
type ResponseFrame struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// UnlockParams are the params of an unlock request.
type UnlockParams struct {
	Email  string   `json:"email"`
	Token  HexBytes `json:"token"`
	PubKey HexBytes `json:"pubkey"`
}

// VerifyAddressParams are the params of a verifyaddress request.
type VerifyAddressParams struct {
	Address string   `json:"address"`
	Token   HexBytes `json:"token"`
}

// SignParams are the params of a sign request.
type SignParams struct {
	Tx         HexBytes   `json:"tx"`
	KeyIndices []uint32   `json:"keyindices"`
	Tokens     []HexBytes `json:"tokens"`
}

// CreateOriginParams are the params of a createorigin request.
type CreateOriginParams struct {
	Email string   `json:"email"`
	Token HexBytes `json:"token"`
}

// GenerateKeysParams are the params of a generatekeys request.
type GenerateKeysParams struct {
	Tokens []HexBytes `json:"tokens"`
	Start  uint32     `json:"start"`
}

// UnlockResult is the result of an unlock request.
type UnlockResult struct {
	Unlocked bool `json:"unlocked"`
}

// VerifyAddressResult is the result of a verifyaddress request.
type VerifyAddressResult struct {
	Owned bool `json:"owned"`
}

// SignResult is the result of a sign request.
type SignResult struct {
	Tx HexBytes `json:"tx"`
}

// CreateOriginResult is the result of a createorigin request.
type CreateOriginResult struct {
	PubKey HexBytes `json:"pubkey"`
}

// GenerateKeysResult is the result of a generatekeys request.
type GenerateKeysResult struct {
	PubKeys []HexBytes `json:"pubkeys"`
	Start   uint32     `json:"start"`
}

// StatusResult is the result of a status request.
type StatusResult struct {
	State string `json:"state"`
}

// LockResult is the result of a lock request.
type LockResult struct{}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParams, err)
	}

	return nil
}

// decodeRequest turns a frame into a dispatcher request.
func decodeRequest(frame *RequestFrame) (dispatcher.Request, error) {
	switch dispatcher.Kind(frame.Method) {
	case dispatcher.KindUnlock:
		var p UnlockParams
		if err := decodeParams(frame.Params, &p); err != nil {
			return nil, err
		}

		return &dispatcher.UnlockRequest{
			Email:          p.Email,
			Token:          p.Token,
			ExpectedPubKey: p.PubKey,
		}, nil

	case dispatcher.KindVerifyAddress:
		var p VerifyAddressParams
		if err := decodeParams(frame.Params, &p); err != nil {
			return nil, err
		}

		return &dispatcher.VerifyAddressRequest{
			Address: p.Address,
			Token:   p.Token,
		}, nil

	case dispatcher.KindSign:
		var p SignParams
		if err := decodeParams(frame.Params, &p); err != nil {
			return nil, err
		}

		return &dispatcher.SignRequest{
			UnsignedTx: p.Tx,
			KeyIndices: p.KeyIndices,
			Tokens:     toBytes(p.Tokens),
		}, nil

	case dispatcher.KindCreateOrigin:
		var p CreateOriginParams
		if err := decodeParams(frame.Params, &p); err != nil {
			return nil, err
		}

		return &dispatcher.CreateOriginRequest{
			Email: p.Email,
			Token: p.Token,
		}, nil

	case dispatcher.KindGenerateKeys:
		var p GenerateKeysParams
		if err := decodeParams(frame.Params, &p); err != nil {
			return nil, err
		}

		return &dispatcher.GenerateKeysRequest{
			Tokens:     toBytes(p.Tokens),
			StartIndex: p.Start,
		}, nil

	case dispatcher.KindLock:
		return &dispatcher.LockRequest{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, frame.Method)
	}
}

// encodeResponse turns a dispatcher response into a frame.
func encodeResponse(resp *dispatcher.Response) *ResponseFrame {
	frame := &ResponseFrame{
		ID:     resp.ID,
		Method: string(resp.Kind),
	}
	if resp.Err != nil {
		frame.Error = resp.Err.Error()
		return frame
	}

	switch resp.Kind {
	case dispatcher.KindUnlock:
		frame.Result = &UnlockResult{Unlocked: resp.Unlocked}

	case dispatcher.KindVerifyAddress:
		frame.Result = &VerifyAddressResult{Owned: resp.Owned}

	case dispatcher.KindSign:
		frame.Result = &SignResult{Tx: resp.SignedTx}

	case dispatcher.KindCreateOrigin:
		frame.Result = &CreateOriginResult{PubKey: resp.OriginPubKey}

	case dispatcher.KindGenerateKeys:
		frame.Result = &GenerateKeysResult{
			PubKeys: toHex(resp.PubKeys),
			Start:   resp.StartIndex,
		}

	default:
		frame.Result = &LockResult{}
	}

	return frame
}

// errorFrame returns a frame reporting err for a request.
func errorFrame(req *RequestFrame, err error) *ResponseFrame {
	return &ResponseFrame{
		ID:     req.ID,
		Method: req.Method,
		Error:  err.Error(),
	}
}
