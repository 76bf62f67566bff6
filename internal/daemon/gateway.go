package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"hostpanel/internal/model"
)

const (
	DefaultTimeout = 5 * time.Second

	statusPending = "pending"
	maxBodyBytes  = 4 << 20
)

// Error is the uniform failure of a daemon call. Unavailable marks transport
// failures and timeouts; otherwise the daemon answered and refused.
type Error struct {
	Code        string
	Message     string
	Unavailable bool
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("daemon %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("daemon %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a daemon Error from err.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

const (
	CodeCouldNotConnect = "COULD_NOT_CONNECT_TO_NODE"
	CodeInvalidResponse = "INVALID_RESPONSE_FROM_NODE"
	CodeRejected        = "DAEMON_ERROR"
)

// Response is a decoded daemon envelope. Data is kept raw so each call site
// decodes its own shape.
type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type Config struct {
	Secret  string
	Timeout time.Duration
}

// Gateway is the outbound client for node daemons. It is safe for concurrent
// use.
type Gateway struct {
	client  *http.Client
	secret  string
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewGateway(cfg Config, logger *zap.SugaredLogger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gateway{
		client:  &http.Client{},
		secret:  cfg.Secret,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// BaseURL is the daemon root for node.
func BaseURL(node model.Node) string {
	scheme := "http"
	if node.SSL {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(node.Address, strconv.Itoa(node.DaemonPort))
}

type callOptions struct {
	acceptPending bool
}

// CallOption adjusts how Call judges the daemon's answer.
type CallOption func(*callOptions)

// AcceptPending treats a pending envelope as success. Only endpoints that
// finish asynchronously and report back through a callback use it.
func AcceptPending() CallOption {
	return func(o *callOptions) { o.acceptPending = true }
}

// Call issues one request and decodes the envelope. Any status other than
// success (or pending, with AcceptPending), any non-2xx code and every
// transport failure comes back as *Error. When out is non-nil the envelope
// data is decoded into it.
func (g *Gateway) Call(ctx context.Context, node model.Node, method, path string, body, out any, opts ...CallOption) (*Response, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode daemon request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := BaseURL(node) + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &Error{Code: CodeCouldNotConnect, Message: "Could not connect to node", Unavailable: true, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warnw("daemon call failed", "node", node.ID, "method", method, "path", path, "error", err)
		return nil, &Error{Code: CodeCouldNotConnect, Message: "Could not connect to node", Unavailable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Code: CodeCouldNotConnect, Message: "Could not connect to node", Unavailable: true, Err: err}
	}
	g.logger.Debugw("daemon call", "node", node.ID, "method", method, "path", path, "code", resp.StatusCode, "took", time.Since(started))

	var env Response
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Code: CodeInvalidResponse, Message: "Invalid response from node", Err: err}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300 &&
		(env.Status == model.EnvelopeSuccess || (o.acceptPending && env.Status == statusPending))
	if !ok {
		code := env.Error
		if code == "" {
			code = CodeRejected
		}
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("Node answered with HTTP %d", resp.StatusCode)
		}
		return &env, &Error{Code: code, Message: msg}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, &Error{Code: CodeInvalidResponse, Message: "Invalid response from node", Err: err}
		}
	}
	return &env, nil
}
