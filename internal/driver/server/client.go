package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/cache"
	"github.com/cmake-mcp/cmake-mcp/internal/errors"
)

// State reflects where the client is in the connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateHandshaking
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting-hello"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// settleDelay gives cmake time to create its socket before we dial.
const settleDelay = 500 * time.Millisecond

// requestResult carries one resolved reply back to its requester.
type requestResult struct {
	payload json.RawMessage
	err     error
}

// ClientOptions configures a Client.
type ClientOptions struct {
	CMakePath       string
	SourceDirectory string
	BuildDirectory  string
	Generator       string
	Platform        string
	Toolset         string
	Environment     []string
	Log             *zap.Logger

	// OnMessage receives interactive output from cmake (message type
	// messages and configure/compute stderr-style text).
	OnMessage func(text string)
	// OnProgress receives progress notifications, fraction in [0, 1].
	OnProgress func(message string, fraction float64)
	// OnSignal receives dirty and fileChange signals.
	OnSignal func(name string)

	// dial overrides socket dialing in tests.
	dial func(path string) (net.Conn, error)
	// startProcess overrides process spawning in tests.
	startProcess func(c *Client) error
	// settle overrides the socket settle wait in tests.
	settle time.Duration
}

// Client is a connection to one cmake-server process.
type Client struct {
	opts     ClientOptions
	log      *zap.Logger
	pipePath string

	mu       sync.Mutex
	state    State
	pending  map[string]chan requestResult
	closing  bool
	protocol protocolVersion

	cmd  *exec.Cmd
	conn net.Conn

	// startup is resolved exactly once: by the handshake reply or by the
	// first failure on the way there.
	startup     chan error
	startupOnce sync.Once

	readerDone  chan struct{}
	processDone chan error
}

// NewClient prepares a client. Start must be called before requests.
func NewClient(opts ClientOptions) *Client {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.dial == nil {
		opts.dial = func(path string) (net.Conn, error) {
			return net.Dial("unix", path)
		}
	}
	return &Client{
		opts:        opts,
		log:         log.Named("cmake-server"),
		state:       StateDisconnected,
		pending:     make(map[string]chan requestResult),
		startup:     make(chan error, 1),
		readerDone:  make(chan struct{}),
		processDone: make(chan error, 1),
	}
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.log.Debug("state change", zap.String("state", s.String()))
}

func (c *Client) resolveStartup(err error) {
	c.startupOnce.Do(func() {
		c.startup <- err
	})
}

// Start launches cmake in server mode, connects, performs the hello and
// handshake exchange, and returns once the server is ready for requests.
func (c *Client) Start(ctx context.Context) error {
	c.setState(StateConnecting)

	c.pipePath = filepath.Join(c.opts.BuildDirectory, fmt.Sprintf(".cmake-mcp-%s.sock", uuid.NewString()))

	start := c.opts.startProcess
	if start == nil {
		start = startServerProcess
	}
	if err := start(c); err != nil {
		c.setState(StateClosed)
		return errors.Transport("spawn", err)
	}

	// cmake creates the socket shortly after startup. There is no
	// readiness notification, so wait before dialing.
	settle := c.opts.settle
	if settle == 0 {
		settle = settleDelay
	}
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		c.teardown()
		return errors.Transport("connect", ctx.Err())
	}

	conn, err := c.opts.dial(c.pipePath)
	if err != nil {
		c.teardown()
		return errors.Transport("connect", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateAwaitingHello)
	go c.readLoop()

	select {
	case err := <-c.startup:
		if err != nil {
			c.teardown()
			return err
		}
		return nil
	case <-ctx.Done():
		c.teardown()
		return errors.Transport("handshake", ctx.Err())
	}
}

func startServerProcess(c *Client) error {
	cmd := exec.Command(c.opts.CMakePath, "-E", "server", "--experimental", "--pipe="+c.pipePath)
	cmd.Env = c.opts.Environment
	cmd.Dir = c.opts.BuildDirectory
	if err := cmd.Start(); err != nil {
		return err
	}
	c.cmd = cmd
	go func() {
		c.processDone <- cmd.Wait()
	}()
	return nil
}

// readLoop consumes frames from the connection until it closes.
func (c *Client) readLoop() {
	defer close(c.readerDone)

	var buf []byte
	chunk := make([]byte, 32*1024)
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				payload, rest, ferr := ExtractFrame(buf)
				if ferr != nil {
					c.connectionLost(ferr)
					return
				}
				if payload == nil {
					break
				}
				buf = rest
				c.dispatch(payload)
			}
		}
		if err != nil {
			c.connectionLost(err)
			return
		}
	}
}

// connectionLost handles the reader exiting. During an orderly shutdown the
// closed connection is expected; otherwise every pending request fails and
// the failure is surfaced or logged depending on how far startup got.
func (c *Client) connectionLost(err error) {
	c.mu.Lock()
	closing := c.closing
	st := c.state
	c.state = StateClosed
	c.mu.Unlock()

	if closing {
		c.rejectAllPending(errors.Transport("shutdown", fmt.Errorf("connection closed")))
		return
	}

	terr := errors.Transport("read", err)
	c.rejectAllPending(terr)
	if st == StateReady {
		c.log.Error("cmake server terminated abnormally", zap.Error(err))
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.teardown()
	c.resolveStartup(terr)
}

// dispatch routes one decoded frame.
func (c *Client) dispatch(payload []byte) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		c.log.Warn("undecodable message from cmake server", zap.Error(err))
		return
	}

	switch env.Type {
	case msgHello:
		c.onHello(env)
	case msgReply:
		c.resolvePending(env.Cookie, env.Type, requestResult{payload: json.RawMessage(payload)})
	case msgError:
		c.resolvePending(env.Cookie, env.Type, requestResult{
			err: errors.ServerReply(env.ErrorMessage, env.Cookie, env.InReplyTo),
		})
	case msgProgress:
		if c.opts.OnProgress != nil {
			span := env.ProgressMaximum - env.ProgressMinimum
			frac := 0.0
			if span > 0 {
				frac = (env.ProgressCurrent - env.ProgressMinimum) / span
			}
			c.opts.OnProgress(env.ProgressMessage, frac)
		}
	case msgMessage:
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(env.Message)
		}
	case msgSignal:
		c.log.Debug("signal from cmake server", zap.String("name", env.Name))
		if c.opts.OnSignal != nil {
			c.opts.OnSignal(env.Name)
		}
	default:
		c.log.Warn("unknown message type from cmake server", zap.String("type", env.Type))
	}
}

// resolvePending hands the result to the waiting requester. The entry is
// removed first so a duplicate cookie resolves at most once.
func (c *Client) resolvePending(cookie, msgType string, res requestResult) {
	c.mu.Lock()
	ch, ok := c.pending[cookie]
	if ok {
		delete(c.pending, cookie)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn("unmatched server message", zap.Error(errors.UnknownCookie(cookie, msgType)))
		return
	}
	ch <- res
}

func (c *Client) rejectAllPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan requestResult)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- requestResult{err: err}
	}
}

// onHello picks the highest protocol version both sides support and issues
// the handshake.
func (c *Client) onHello(env envelope) {
	best := protocolVersion{Major: -1}
	for _, v := range env.SupportedProtocolVersions {
		if v.Major > best.Major || (v.Major == best.Major && v.Minor > best.Minor) {
			best = v
		}
	}
	if best.Major < 0 {
		c.resolveStartup(errors.HandshakeFailed(fmt.Errorf("server offered no protocol versions")))
		return
	}
	c.protocol = best
	c.setState(StateHandshaking)

	go func() {
		if err := c.handshake(context.Background()); err != nil {
			c.resolveStartup(err)
			return
		}
		c.setState(StateReady)
		c.resolveStartup(nil)
	}()
}

// handshake sends the handshake request. When the build tree already has a
// cache, its recorded home directory is passed through verbatim so cmake
// does not reject the session over a path spelling difference.
func (c *Client) handshake(ctx context.Context) error {
	sourceDir := c.opts.SourceDirectory
	if snap, err := cache.Load(cache.CachePath(c.opts.BuildDirectory)); err == nil {
		if home, ok := snap.SourceDirectory(); ok && home != "" {
			sourceDir = home
		}
	}

	params := handshakeParams{
		ProtocolVersion: c.protocol,
		SourceDirectory: filepath.ToSlash(sourceDir),
		BuildDirectory:  filepath.ToSlash(c.opts.BuildDirectory),
		Generator:       c.opts.Generator,
		Platform:        c.opts.Platform,
		Toolset:         c.opts.Toolset,
	}
	body, err := json.Marshal(params)
	if err != nil {
		return errors.HandshakeFailed(err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return errors.HandshakeFailed(err)
	}

	if _, err := c.request(ctx, reqHandshake, fields); err != nil {
		return errors.HandshakeFailed(err)
	}
	return nil
}

// Request sends one request and waits for its reply. The client must be
// ready.
func (c *Client) Request(ctx context.Context, reqType string, params map[string]interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st != StateReady {
		return nil, errors.Transport("request", fmt.Errorf("client not ready (%s)", st))
	}
	return c.request(ctx, reqType, params)
}

func (c *Client) request(ctx context.Context, reqType string, params map[string]interface{}) (json.RawMessage, error) {
	cookie := uuid.NewString()

	msg := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		msg[k] = v
	}
	msg["type"] = reqType
	msg["cookie"] = cookie

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Transport("encode", err)
	}

	ch := make(chan requestResult, 1)
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil, errors.Transport("request", fmt.Errorf("client shutting down"))
	}
	c.pending[cookie] = ch
	conn := c.conn
	c.mu.Unlock()

	if _, err := conn.Write(encodeFrame(payload)); err != nil {
		c.mu.Lock()
		delete(c.pending, cookie)
		c.mu.Unlock()
		return nil, errors.Transport("write", err)
	}

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, cookie)
		c.mu.Unlock()
		return nil, errors.Transport("request", ctx.Err())
	}
}

// Shutdown closes the connection and terminates the server process. Pending
// requests are rejected. Safe to call more than once.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		<-c.readerDone
	}
	c.teardown()
	c.setState(StateClosed)
	return nil
}

func (c *Client) teardown() {
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		select {
		case <-c.processDone:
		case <-time.After(5 * time.Second):
			c.log.Warn("cmake server did not exit after kill")
		}
		c.cmd = nil
	}
	if c.pipePath != "" {
		os.Remove(c.pipePath)
	}
	c.rejectAllPending(errors.Transport("shutdown", fmt.Errorf("client closed")))
}
