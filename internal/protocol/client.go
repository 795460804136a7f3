// Package protocol implements a JSON-RPC 2.0 client over a child process's
// stdio (or any byte stream). The MCP and LSP subsystems are both built on it.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/Cyclone1070/coda/internal/logger"
	"go.lsp.dev/jsonrpc2"
)

// gracePeriod is how long Close waits for the child to exit on its own
// after its stdin is closed before killing it.
const gracePeriod = 500 * time.Millisecond

// NotificationHandler receives a notification's raw params.
type NotificationHandler func(ctx context.Context, params json.RawMessage)

// RequestHandler answers a server-to-client request.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Spec describes a child process to spawn.
type Spec struct {
	// Name identifies the peer in logs and errors.
	Name    string
	Command string
	Args    []string
	// Env is added to the parent environment.
	Env     map[string]string
	Dir     string
	Framing Framing
}

// Client is one JSON-RPC channel. Calls are single-flight: one request is
// outstanding at a time.
type Client struct {
	name string
	conn jsonrpc2.Conn
	log  *slog.Logger

	callMu sync.Mutex

	mu            sync.RWMutex
	notifications map[string]NotificationHandler
	requests      map[string]RequestHandler

	// Set only for spawned children.
	cmd    *exec.Cmd
	stderr *tailBuffer
	exited chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Start spawns the child described by spec and connects to its stdio.
// ctx only bounds the spawn; the child lives until Close.
func Start(ctx context.Context, spec Spec) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(spec.Env)...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StartError{Command: spec.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &StartError{Command: spec.Command, Err: err}
	}
	stderr := newTailBuffer(8 * 1024)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Command: spec.Command, Err: err}
	}

	name := spec.Name
	if name == "" {
		name = spec.Command
	}

	c := newClient(name, &stdioConn{stdin: stdin, stdout: stdout}, spec.Framing)
	c.cmd = cmd
	c.stderr = stderr
	c.exited = make(chan struct{})

	// Reap only after the reader has finished with stdout.
	go func() {
		<-c.conn.Done()
		if err := cmd.Wait(); err != nil {
			c.log.Debug("child exited", "error", err)
		}
		close(c.exited)
	}()

	c.log.Info("process started", "command", spec.Command, "pid", cmd.Process.Pid, "framing", spec.Framing)
	return c, nil
}

// New builds a client over an existing stream.
func New(rwc io.ReadWriteCloser, framing Framing, name string) *Client {
	return newClient(name, rwc, framing)
}

func newClient(name string, rwc io.ReadWriteCloser, framing Framing) *Client {
	c := &Client{
		name:          name,
		conn:          jsonrpc2.NewConn(NewStream(rwc, framing)),
		log:           logger.WithComponent("protocol").With("peer", name),
		notifications: make(map[string]NotificationHandler),
		requests:      make(map[string]RequestHandler),
	}
	c.conn.Go(context.Background(), c.handle)
	return c
}

// Name returns the peer name.
func (c *Client) Name() string {
	return c.name
}

// OnNotification registers h for notifications named method.
// Handlers run on the read loop and must not call back into the client.
func (c *Client) OnNotification(method string, h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications[method] = h
}

// OnRequest registers h to answer server-to-client requests named method.
// Unregistered requests are answered with a null result.
func (c *Client) OnRequest(method string, h RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[method] = h
}

func (c *Client) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params := json.RawMessage(req.Params())

	if _, isCall := req.(*jsonrpc2.Call); isCall {
		c.mu.RLock()
		h := c.requests[req.Method()]
		c.mu.RUnlock()
		if h == nil {
			c.log.Debug("answering unhandled request with null", "method", req.Method())
			return reply(ctx, nil, nil)
		}
		result, err := h(ctx, params)
		return reply(ctx, result, err)
	}

	c.mu.RLock()
	h := c.notifications[req.Method()]
	c.mu.RUnlock()
	if h == nil {
		c.log.Debug("ignoring notification", "method", req.Method())
		return nil
	}
	h(ctx, params)
	return nil
}

// Call sends a request and decodes the response into result (may be nil).
// A terminated channel yields an error wrapping ErrClosed, including when
// it terminates while the call is waiting.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if c.closed() {
		return closedError(method, c.Stderr())
	}

	// jsonrpc2 leaves pending calls waiting when the stream dies, so tie the
	// call to the connection's lifetime.
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.conn.Done():
			cancel()
		case <-callCtx.Done():
		}
	}()

	c.log.Debug("call", "method", method)
	_, err := c.conn.Call(callCtx, method, params, result)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", method, ctxErr)
	}
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return &ServerError{Method: method, Code: int64(rpcErr.Code), Message: rpcErr.Message}
	}
	if c.closed() || isBrokenPipe(err) {
		return closedError(method, c.Stderr())
	}
	return fmt.Errorf("%s: %w", method, err)
}

// Notify sends a notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if c.closed() {
		return closedError(method, c.Stderr())
	}
	if err := c.conn.Notify(ctx, method, params); err != nil {
		if c.closed() || isBrokenPipe(err) {
			return closedError(method, c.Stderr())
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Done is closed when the channel terminates.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Err returns the read loop's terminal error, if any.
func (c *Client) Err() error {
	return c.conn.Err()
}

// Stderr returns the most recent stderr output of a spawned child.
func (c *Client) Stderr() string {
	if c.stderr == nil {
		return ""
	}
	return c.stderr.String()
}

// Close closes the channel and, for a spawned child, reaps it, killing it
// if it does not exit promptly. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			c.closeErr = err
		}
		if c.cmd == nil {
			return
		}

		select {
		case <-c.exited:
		case <-time.After(gracePeriod):
			c.log.Debug("killing process", "pid", c.cmd.Process.Pid)
			if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				c.closeErr = err
			}
			select {
			case <-c.exited:
			case <-time.After(5 * time.Second):
				c.log.Warn("process did not exit after kill", "pid", c.cmd.Process.Pid)
			}
		}
		c.log.Info("process stopped")
	})
	return c.closeErr
}

func (c *Client) closed() bool {
	select {
	case <-c.conn.Done():
		return true
	default:
		return false
	}
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.EOF)
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]string, 0, len(env))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}

// stdioConn joins a child's stdin and stdout into one stream.
type stdioConn struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (s *stdioConn) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *stdioConn) Write(p []byte) (int, error) { return s.stdin.Write(p) }

func (s *stdioConn) Close() error {
	errIn := s.stdin.Close()
	errOut := s.stdout.Close()
	return errors.Join(errIn, errOut)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
