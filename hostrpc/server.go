package hostrpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/keyoracle/keyoracle/dispatcher"
	"github.com/keyoracle/keyoracle/lnutils"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second

	// maxFrameSize bounds a single request frame.
	maxFrameSize = 4 << 20
)

// Submitter schedules requests. It is implemented by dispatcher.Dispatcher.
type Submitter interface {
	Submit(ctx context.Context, id uint64, req dispatcher.Request,
		host dispatcher.Host) error
}

// Config houses the configuration of the Server.
type Config struct {
	// Listen is the address the websocket endpoint is served on.
	Listen string

	// AllowedOrigins lists the browser origins permitted to connect. If
	// empty, only origins matching the request host are accepted.
	AllowedOrigins []string

	// Dispatcher runs the decoded requests.
	Dispatcher Submitter

	// Status returns the current session state.
	Status func() string

	// PingTicker creates the keepalive ticker of a connection. It defaults
	// to a ticker firing every pingInterval.
	PingTicker func() ticker.Ticker
}

// Server is the host facing transport. Every websocket connection is a host
// whose requests are submitted to the dispatcher and whose responses are
// pushed back asynchronously.
type Server struct {
	started atomic.Bool
	stopped atomic.Bool

	cfg *Config

	nextConnID atomic.Uint64
	conns      lnutils.SyncMap[uint64, *hostConn]

	srv      *http.Server
	listener net.Listener

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a new Server.
func New(cfg *Config) *Server {
	if cfg.PingTicker == nil {
		cfg.PingTicker = func() ticker.Ticker {
			return ticker.New(pingInterval)
		}
	}

	return &Server{
		cfg:  cfg,
		quit: make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)

	return mux
}

// Start begins serving on the configured address.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.listener = listener

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := s.srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Host endpoint stopped: %v", err)
		}
	}()

	log.Infof("Listening for host connections on ws://%v/ws",
		listener.Addr())

	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Stop closes all connections and shuts the server down.
func (s *Server) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	log.Info("Host endpoint shutting down...")
	close(s.quit)

	var err error
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		err = s.srv.Shutdown(ctx)
		cancel()
	}

	// Hijacked websocket connections are not closed by Shutdown.
	for _, c := range s.conns.Values() {
		_ = c.conn.Close()
	}
	s.wg.Wait()

	return err
}

// checkOrigin accepts requests without an origin header, origins listed in
// the configuration, and otherwise only origins matching the request host.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.cfg.AllowedOrigins) > 0 {
		for _, allowed := range s.cfg.AllowedOrigins {
			if strings.EqualFold(allowed, origin) {
				return true
			}
		}

		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	originHost := originURL.Host
	if host, _, err := net.SplitHostPort(originHost); err == nil {
		originHost = host
	}
	requestHost := r.Host
	if host, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = host
	}

	return strings.EqualFold(originHost, requestHost)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		var herr websocket.HandshakeError
		if !errors.As(err, &herr) {
			log.Errorf("Unexpected websocket error: %v", err)
		}
		return
	}

	c := &hostConn{
		id:     s.nextConnID.Add(1),
		conn:   ws,
		server: s,
	}
	s.conns.Store(c.id, c)
	defer s.conns.Delete(c.id)

	s.wg.Add(1)
	defer s.wg.Done()

	log.Infof("Host %d connected from %v", c.id, r.RemoteAddr)
	err = c.run()
	log.Infof("Host %d disconnected: %v", c.id, err)
}

// hostConn is a single websocket connection. It implements dispatcher.Host.
type hostConn struct {
	id     uint64
	conn   *websocket.Conn
	server *Server

	// writeMtx serializes writers since the websocket connection supports
	// only one at a time.
	writeMtx sync.Mutex
}

// A compile time check to ensure hostConn implements the dispatcher.Host
// interface.
var _ dispatcher.Host = (*hostConn)(nil)

// Deliver implements dispatcher.Host.
func (c *hostConn) Deliver(resp *dispatcher.Response) {
	if err := c.write(encodeResponse(resp)); err != nil {
		log.Debugf("Unable to deliver response %d to host %d: %v",
			resp.ID, c.id, err)
	}
}

func (c *hostConn) write(frame *ResponseFrame) error {
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return c.conn.WriteJSON(frame)
}

// run reads frames until the connection fails. Requests still running when
// the host disconnects are cancelled.
func (c *hostConn) run() error {
	defer c.conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.pingLoop(ctx)

	for {
		var frame RequestFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return err
		}

		c.handleFrame(ctx, &frame)
	}
}

func (c *hostConn) handleFrame(ctx context.Context, frame *RequestFrame) {
	log.Tracef("Host %d request id=%d method=%v", c.id, frame.ID,
		frame.Method)

	if frame.Method == MethodStatus {
		state := ""
		if c.server.cfg.Status != nil {
			state = c.server.cfg.Status()
		}
		_ = c.write(&ResponseFrame{
			ID:     frame.ID,
			Method: frame.Method,
			Result: &StatusResult{State: state},
		})

		return
	}

	req, err := decodeRequest(frame)
	if err != nil {
		_ = c.write(errorFrame(frame, err))
		return
	}

	err = c.server.cfg.Dispatcher.Submit(ctx, frame.ID, req, c)
	if err != nil {
		_ = c.write(errorFrame(frame, err))
	}
}

func (c *hostConn) pingLoop(ctx context.Context) {
	pingTicker := c.server.cfg.PingTicker()
	pingTicker.Resume()
	defer pingTicker.Stop()

	for {
		select {
		case <-pingTicker.Ticks():
			c.writeMtx.Lock()
			err := c.conn.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(writeWait),
			)
			c.writeMtx.Unlock()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return

		case <-c.server.quit:
			return
		}
	}
}
