package dispatcher

// Kind names a request type.
type Kind string

const (
	// KindUnlock unlocks the wallet.
	KindUnlock Kind = "unlock"

	// KindVerifyAddress checks ownership of an address.
	KindVerifyAddress Kind = "verifyaddress"

	// KindSign signs a server proposed transaction.
	KindSign Kind = "sign"

	// KindCreateOrigin bootstraps a new wallet.
	KindCreateOrigin Kind = "createorigin"

	// KindGenerateKeys derives public keys for a batch of tokens.
	KindGenerateKeys Kind = "generatekeys"

	// KindLock wipes the session secret.
	KindLock Kind = "lock"
)

// Kinds lists every request kind.
var Kinds = []Kind{
	KindUnlock, KindVerifyAddress, KindSign, KindCreateOrigin,
	KindGenerateKeys, KindLock,
}

// Request is a unit of work submitted by the host.
type Request interface {
	// Kind returns the request type.
	Kind() Kind
}

// UnlockRequest asks for the wallet to be unlocked. ExpectedPubKey is the
// origin public key recorded by the server.
type UnlockRequest struct {
	Email          string
	Token          []byte
	ExpectedPubKey []byte
}

// Kind implements Request.
func (*UnlockRequest) Kind() Kind { return KindUnlock }

// VerifyAddressRequest asks whether Address pays to the key of Token.
type VerifyAddressRequest struct {
	Address string
	Token   []byte
}

// Kind implements Request.
func (*VerifyAddressRequest) Kind() Kind { return KindVerifyAddress }

// SignRequest asks for UnsignedTx to be signed with the keys at KeyIndices.
type SignRequest struct {
	UnsignedTx []byte
	KeyIndices []uint32
	Tokens     [][]byte
}

// Kind implements Request.
func (*SignRequest) Kind() Kind { return KindSign }

// CreateOriginRequest asks for a new wallet to be created.
type CreateOriginRequest struct {
	Email string
	Token []byte
}

// Kind implements Request.
func (*CreateOriginRequest) Kind() Kind { return KindCreateOrigin }

// GenerateKeysRequest asks for the public keys of Tokens, which belong to
// consecutive key indices starting at StartIndex.
type GenerateKeysRequest struct {
	Tokens     [][]byte
	StartIndex uint32
}

// Kind implements Request.
func (*GenerateKeysRequest) Kind() Kind { return KindGenerateKeys }

// LockRequest asks for the session to be locked.
type LockRequest struct{}

// Kind implements Request.
func (*LockRequest) Kind() Kind { return KindLock }

// Response is the outcome of one request. Exactly one of Err or the fields
// belonging to Kind is set.
type Response struct {
	// ID is the host assigned request id.
	ID uint64

	// Kind is the type of the answered request.
	Kind Kind

	// Err is set if the request failed.
	Err error

	// Unlocked is set by a successful unlock.
	Unlocked bool

	// Owned is the answer to a verify address request.
	Owned bool

	// SignedTx is the serialized signed transaction.
	SignedTx []byte

	// OriginPubKey is the public key of a new wallet.
	OriginPubKey []byte

	// PubKeys are the generated public keys in token order.
	PubKeys [][]byte

	// StartIndex echoes the start index of a generate keys request.
	StartIndex uint32
}

// Host receives responses. Deliver may be called concurrently from several
// goroutines.
type Host interface {
	Deliver(resp *Response)
}

// HostFunc adapts a function to the Host interface.
type HostFunc func(resp *Response)

// Deliver implements Host.
func (f HostFunc) Deliver(resp *Response) {
	f(resp)
}
