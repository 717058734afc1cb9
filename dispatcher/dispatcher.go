package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/keyoracle/keyoracle/session"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrShuttingDown is returned when a request is submitted after the
	// dispatcher was stopped.
	ErrShuttingDown = errors.New("dispatcher shutting down")

	// ErrUnknownRequest is returned for request types the dispatcher
	// cannot handle.
	ErrUnknownRequest = errors.New("unknown request")

	// ErrHandlerPanic is reported when a request handler panicked.
	ErrHandlerPanic = errors.New("request handler panicked")
)

// Unlocker drives the unlock state machine.
type Unlocker interface {
	Unlock(ctx context.Context, email string, token0,
		expectedPub []byte) error

	CreateOrigin(ctx context.Context, email string,
		token0 []byte) ([]byte, error)

	Lock()
}

// Authorizer signs transactions and verifies addresses.
type Authorizer interface {
	Sign(ctx context.Context, rawTx []byte, keyIndices []uint32,
		tokens [][]byte) ([]byte, error)

	VerifyAddress(addr string, token []byte) (bool, error)
}

// KeyGenerator derives public keys.
type KeyGenerator interface {
	DerivePubKeys(tokens [][]byte) ([][]byte, error)
}

// SessionState reports whether secret dependent requests may run.
type SessionState interface {
	IsUnlocked() bool
}

// Observer is notified about every finished request.
type Observer interface {
	RequestDone(kind Kind, err error, elapsed time.Duration)
}

// Config houses the collaborators of the Dispatcher.
type Config struct {
	Unlocker   Unlocker
	Authorizer Authorizer
	KeyGen     KeyGenerator
	Session    SessionState

	// Observer is optional.
	Observer Observer

	// Clock times requests for the Observer. It defaults to the wall
	// clock.
	Clock clock.Clock
}

// Dispatcher runs every submitted request in its own goroutine and delivers
// the response to the host. A failure or panic in one request never affects
// another.
type Dispatcher struct {
	started atomic.Bool
	stopped atomic.Bool

	cfg *Config
	gm  *fn.GoroutineManager
}

// New creates a new Dispatcher.
func New(cfg *Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Dispatcher{
		cfg: cfg,
		gm:  fn.NewGoroutineManager(),
	}
}

// Start marks the dispatcher as ready.
func (d *Dispatcher) Start() error {
	if !d.started.CompareAndSwap(false, true) {
		return nil
	}

	log.Info("Request dispatcher started")

	return nil
}

// Stop cancels the context of every running request and waits for them to
// return.
func (d *Dispatcher) Stop() error {
	if !d.stopped.CompareAndSwap(false, true) {
		return nil
	}

	log.Info("Request dispatcher shutting down...")
	d.gm.Stop()
	log.Info("Request dispatcher shutdown complete")

	return nil
}

// Submit schedules req and returns immediately. The response is delivered
// to host once the request completes.
func (d *Dispatcher) Submit(ctx context.Context, id uint64, req Request,
	host Host) error {

	if !d.started.Load() || d.stopped.Load() {
		return ErrShuttingDown
	}

	log.Debugf("Dispatching %v request id=%d", req.Kind(), id)

	ok := d.gm.Go(ctx, func(ctx context.Context) {
		start := d.cfg.Clock.Now()

		resp := d.run(ctx, req)
		resp.ID = id
		resp.Kind = req.Kind()

		if d.cfg.Observer != nil {
			d.cfg.Observer.RequestDone(
				req.Kind(), resp.Err,
				d.cfg.Clock.Now().Sub(start),
			)
		}

		host.Deliver(resp)
	})
	if !ok {
		return ErrShuttingDown
	}

	return nil
}

// run executes req and converts errors and panics into a failed response.
func (d *Dispatcher) run(ctx context.Context, req Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic while handling %v request: %v",
				req.Kind(), r)

			resp = &Response{
				Err: fmt.Errorf("%w: %v", ErrHandlerPanic, r),
			}
		}
	}()

	result, err := d.handle(ctx, req).Unpack()
	if err != nil {
		log.Debugf("%v request failed: %v", req.Kind(), err)

		return &Response{Err: err}
	}

	return result
}

// handle dispatches req to its handler.
func (d *Dispatcher) handle(ctx context.Context,
	req Request) fn.Result[*Response] {

	switch r := req.(type) {
	case *UnlockRequest:
		err := d.cfg.Unlocker.Unlock(
			ctx, r.Email, r.Token, r.ExpectedPubKey,
		)
		if err != nil {
			return fn.Err[*Response](err)
		}

		return fn.Ok(&Response{Unlocked: true})

	case *CreateOriginRequest:
		pub, err := d.cfg.Unlocker.CreateOrigin(ctx, r.Email, r.Token)
		if err != nil {
			return fn.Err[*Response](err)
		}

		return fn.Ok(&Response{OriginPubKey: pub})

	case *LockRequest:
		d.cfg.Unlocker.Lock()

		return fn.Ok(&Response{})

	case *VerifyAddressRequest:
		if !d.cfg.Session.IsUnlocked() {
			return fn.Err[*Response](session.ErrNotUnlocked)
		}

		owned, err := d.cfg.Authorizer.VerifyAddress(r.Address, r.Token)
		if err != nil {
			return fn.Err[*Response](err)
		}

		return fn.Ok(&Response{Owned: owned})

	case *SignRequest:
		if !d.cfg.Session.IsUnlocked() {
			return fn.Err[*Response](session.ErrNotUnlocked)
		}

		signed, err := d.cfg.Authorizer.Sign(
			ctx, r.UnsignedTx, r.KeyIndices, r.Tokens,
		)
		if err != nil {
			return fn.Err[*Response](err)
		}

		return fn.Ok(&Response{SignedTx: signed})

	case *GenerateKeysRequest:
		if !d.cfg.Session.IsUnlocked() {
			return fn.Err[*Response](session.ErrNotUnlocked)
		}

		pubKeys, err := d.cfg.KeyGen.DerivePubKeys(r.Tokens)
		if err != nil {
			return fn.Err[*Response](err)
		}

		return fn.Ok(&Response{
			PubKeys:    pubKeys,
			StartIndex: r.StartIndex,
		})

	default:
		return fn.Errf[*Response]("%w: %T", ErrUnknownRequest, req)
	}
}
