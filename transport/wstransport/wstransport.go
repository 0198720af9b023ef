// Package wstransport implements transport.Transport over a single
// gorilla/websocket connection, for peers that sit outside the NATS mesh
// (an edge gateway, a browser-facing component). Each websocket message
// carries exactly one csmsg wire frame; there is no additional outer
// framing since gorilla already preserves message boundaries.
//
// Unlike natstransport, which fans out to many subjects, a wstransport
// Transport speaks to exactly one peer at a time: either it dials out
// (Client mode) or it accepts the single most recent inbound connection
// (Server mode), replacing any prior connection the way a supervisory
// process restarting its peer would expect.
package wstransport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/maf/csmsg"
	"github.com/c360/maf/pkg/buffer"
	"github.com/c360/maf/pkg/retry"
	"github.com/c360/maf/pkg/security"
	"github.com/c360/maf/pkg/tlsutil"
	"github.com/c360/maf/transport"
)

// Config configures a Transport. Exactly one of DialURL (client mode) or
// ListenAddr (server mode) should be set.
type Config struct {
	DialURL    string // ws(s)://host:port/path — client mode
	ListenAddr string // host:port — server mode
	Path       string // server mode: path the websocket endpoint is served on, default "/maf"

	// TLSClient (client mode, wss:// only) is applied when its Mode or
	// CAFiles is set; otherwise the default dialer is used, so
	// InsecureSkipVerify or MinVersion alone take no effect. MTLS is not read.
	TLSClient security.ClientTLSConfig
	TLSServer security.ServerTLSConfig // server mode, only used when Enabled

	WriteTimeout  time.Duration // default 5s
	PingInterval  time.Duration // default 30s
	SendQueueSize int           // default 256, backpressure via pkg/buffer
}

func (c *Config) setDefaults() {
	if c.Path == "" {
		c.Path = "/maf"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
}

// Transport is a transport.Transport backed by one websocket connection at
// a time. Send blocks only long enough to enqueue the frame; actual writes
// happen on a dedicated writer goroutine so a slow peer never stalls the
// caller that queued a message.
type Transport struct {
	cfg Config

	inbound      transport.InboundHandler
	availability transport.AvailabilityHandler

	mu          sync.Mutex
	conn        *websocket.Conn
	sendBuf     buffer.Buffer[[]byte]
	server      *http.Server
	cancel      context.CancelFunc
	tlsCleanup  func() // stops the ACME renewal goroutine, if one was started
	closedMu    sync.Mutex
	closed      bool
}

// New returns a Transport that will operate in client or server mode
// depending on which of cfg.DialURL/cfg.ListenAddr is set.
func New(cfg Config) (*Transport, error) {
	cfg.setDefaults()
	sendBuf, err := buffer.NewCircularBuffer[[]byte](cfg.SendQueueSize, buffer.WithOverflowPolicy[[]byte](buffer.DropOldest))
	if err != nil {
		return nil, fmt.Errorf("wstransport: allocate send buffer: %w", err)
	}
	return &Transport{cfg: cfg, sendBuf: sendBuf}, nil
}

func (t *Transport) SetInboundHandler(handler transport.InboundHandler) { t.inbound = handler }

func (t *Transport) SetAvailabilityHandler(handler transport.AvailabilityHandler) {
	t.availability = handler
}

// Start begins connecting (client mode) or listening (server mode). It
// returns once the transport has a live connection (client mode) or once
// the listener is up and accepting (server mode); the connection itself
// may still be pending in server mode.
func (t *Transport) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	if t.cfg.DialURL != "" {
		return t.startClient(runCtx)
	}
	return t.startServer(runCtx)
}

func (t *Transport) startClient(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	if t.cfg.TLSClient.Mode != "" || len(t.cfg.TLSClient.CAFiles) > 0 {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(t.cfg.TLSClient)
		if err != nil {
			return fmt.Errorf("wstransport: load client TLS config: %w", err)
		}
		dialer = &websocket.Dialer{TLSClientConfig: tlsConfig, HandshakeTimeout: 10 * time.Second}
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.DialURL, nil)
	if err != nil {
		return fmt.Errorf("wstransport: dial %s: %w", t.cfg.DialURL, err)
	}
	t.adopt(conn)
	go t.reconnectLoop(ctx, dialer)
	return nil
}

// reconnectLoop replaces the connection with a freshly dialed one whenever
// the read pump observes the current connection die, using the same
// exponential backoff the framework uses for NATS reconnection.
func (t *Transport) reconnectLoop(ctx context.Context, dialer *websocket.Dialer) {
	for {
		<-t.connLost(ctx)
		if ctx.Err() != nil {
			return
		}
		t.setAvailability(csmsg.AvailabilityUnavailable)

		err := retry.Do(ctx, retry.Persistent(), func() error {
			conn, _, dialErr := dialer.DialContext(ctx, t.cfg.DialURL, nil)
			if dialErr != nil {
				return dialErr
			}
			t.adopt(conn)
			return nil
		})
		if err != nil {
			return // context cancelled during backoff
		}
	}
}

// connLost returns a channel that closes once the currently adopted
// connection's read pump exits.
func (t *Transport) connLost(ctx context.Context) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.readPump(ctx)
	}()
	return done
}

func (t *Transport) startServer(ctx context.Context) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		t.adopt(conn)
		t.readPump(ctx)
	})

	t.server = &http.Server{Addr: t.cfg.ListenAddr, Handler: mux}
	if t.cfg.TLSServer.Enabled {
		// In "acme" mode this obtains (and keeps renewed) a certificate
		// through an ACME directory instead of reading cfg.CertFile/KeyFile;
		// in "manual" mode (the default) it behaves exactly like
		// LoadServerTLSConfigWithMTLS.
		tlsConfig, cleanup, err := tlsutil.LoadServerTLSConfigWithACME(ctx, t.cfg.TLSServer)
		if err != nil {
			return fmt.Errorf("wstransport: load server TLS config: %w", err)
		}
		t.server.TLSConfig = tlsConfig
		t.tlsCleanup = cleanup
	}

	go func() {
		var err error
		if t.server.TLSConfig != nil {
			err = t.server.ListenAndServeTLS("", "")
		} else {
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			t.setAvailability(csmsg.AvailabilityUnavailable)
		}
	}()

	return nil
}

func (t *Transport) adopt(conn *websocket.Conn) {
	t.mu.Lock()
	prev := t.conn
	t.conn = conn
	t.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	t.setAvailability(csmsg.AvailabilityAvailable)
	go t.writePump(conn)
}

func (t *Transport) setAvailability(a csmsg.Availability) {
	if t.availability != nil {
		t.availability(0, a)
	}
}

func (t *Transport) readPump(ctx context.Context) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, decodeErr := csmsg.DecodeFrame(data)
		if decodeErr != nil {
			continue
		}
		if t.inbound != nil {
			t.inbound(ctx, msg)
		}
	}
}

// writePump drains the send buffer onto conn until conn is replaced or
// closed. Only one writePump is ever live per connection; Send never
// writes to the socket directly, so a single slow peer cannot block a
// concurrent Send call.
func (t *Transport) writePump(conn *websocket.Conn) {
	pingTicker := time.NewTicker(t.cfg.PingInterval)
	defer pingTicker.Stop()
	for {
		t.mu.Lock()
		stale := t.conn != conn
		t.mu.Unlock()
		if stale {
			return
		}

		if frame, ok := t.sendBuf.Read(); ok {
			_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
			continue
		}

		select {
		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Send encodes msg and enqueues it for the write pump. Under sustained
// backpressure the oldest queued frame is dropped (DropOldest) rather than
// blocking the caller indefinitely.
func (t *Transport) Send(ctx context.Context, msg csmsg.Message) error {
	frame := csmsg.EncodeFrame(msg)
	return t.sendBuf.WriteWithContext(ctx, frame)
}

// Close shuts down the listener (server mode), stops the reconnect loop
// (client mode) and closes the current connection. Safe to call more than
// once.
func (t *Transport) Close() error {
	t.closedMu.Lock()
	if t.closed {
		t.closedMu.Unlock()
		return nil
	}
	t.closed = true
	t.closedMu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	if t.tlsCleanup != nil {
		t.tlsCleanup()
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}
