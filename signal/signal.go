// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers

package signal

import (
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// ErrAlreadyStarted is returned when an interceptor is still active.
var ErrAlreadyStarted = errors.New("intercept already started")

// started is set while an interrupt handler is running.
var started atomic.Bool

// Interceptor turns OS signals and internal shutdown requests into a single
// shutdown notification.
type Interceptor struct {
	interruptChannel chan os.Signal

	// shutdownRequestChannel receives RequestShutdown calls.
	shutdownRequestChannel chan struct{}

	// quit is closed as soon as a shutdown begins.
	quit chan struct{}

	// shutdownChannel is closed once the handler has exited.
	shutdownChannel chan struct{}
}

// Intercept starts catching interrupt signals. Only one interceptor may be
// active at a time.
func Intercept() (Interceptor, error) {
	if !started.CompareAndSwap(false, true) {
		return Interceptor{}, ErrAlreadyStarted
	}

	c := Interceptor{
		interruptChannel:       make(chan os.Signal, 1),
		shutdownRequestChannel: make(chan struct{}),
		quit:                   make(chan struct{}),
		shutdownChannel:        make(chan struct{}),
	}

	signal.Notify(
		c.interruptChannel, os.Interrupt, syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	go c.mainInterruptHandler()

	return c, nil
}

// mainInterruptHandler waits for the first signal or shutdown request. It must
// be run as a goroutine.
func (c *Interceptor) mainInterruptHandler() {
	defer started.Store(false)

	select {
	case sig := <-c.interruptChannel:
		log.Infof("Received %v", sig)

	case <-c.shutdownRequestChannel:
		log.Infof("Received shutdown request.")
	}

	log.Infof("Shutting down...")
	close(c.quit)
	signal.Stop(c.interruptChannel)
	close(c.shutdownChannel)
}

// Alive returns false once a shutdown has begun.
func (c *Interceptor) Alive() bool {
	select {
	case <-c.quit:
		return false
	default:
		return true
	}
}

// RequestShutdown initiates a graceful shutdown. Calls after the first are
// no-ops.
func (c *Interceptor) RequestShutdown() {
	select {
	case c.shutdownRequestChannel <- struct{}{}:
	case <-c.quit:
	}
}

// ShutdownChannel returns a channel that is closed once the shutdown has
// been processed.
func (c *Interceptor) ShutdownChannel() <-chan struct{} {
	return c.shutdownChannel
}
