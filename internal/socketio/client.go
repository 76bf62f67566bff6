package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventFunc receives every event the remote end emits.
type EventFunc func(event string, args []json.RawMessage)

// Client is a minimal websocket-only socket.io client.
type Client struct {
	ws      *websocket.Conn
	onEvent EventFunc

	sendMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// EndpointURL appends the socket.io websocket path to a ws:// or wss:// base.
func EndpointURL(base string) string {
	return strings.TrimSuffix(base, "/") + "/socket.io/?EIO=4&transport=websocket"
}

// Dial opens url, performs the handshake with auth and starts reading.
// onEvent is called from the read goroutine.
func Dial(ctx context.Context, url string, auth any, onEvent EventFunc) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(maxPayload)

	c := &Client{ws: ws, onEvent: onEvent, done: make(chan struct{})}
	if err := c.handshake(ctx, auth); err != nil {
		_ = ws.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context, auth any) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
		defer c.ws.SetReadDeadline(time.Time{})
	}

	msg, err := c.read()
	if err != nil {
		return fmt.Errorf("read open packet: %w", err)
	}
	if msg == "" || enginePacketType(msg[0]) != engineOpen {
		return fmt.Errorf("unexpected open packet %q", msg)
	}

	packet, err := buildConnectPacket("/", auth)
	if err != nil {
		return err
	}
	if err := c.writeText(string(engineMessage) + packet); err != nil {
		return err
	}

	for {
		msg, err := c.read()
		if err != nil {
			return fmt.Errorf("read connect reply: %w", err)
		}
		switch {
		case msg == string(enginePing):
			_ = c.writeText(string(enginePong))
		case strings.HasPrefix(msg, string(engineMessage)+string(socketConnect)):
			return nil
		case strings.HasPrefix(msg, string(engineMessage)+string(socketConnectError)):
			var body struct {
				Message string `json:"message"`
			}
			_, rest := parseOptionalNamespace(msg[2:])
			_ = json.Unmarshal([]byte(rest), &body)
			if body.Message == "" {
				body.Message = "connection refused"
			}
			return errors.New(body.Message)
		}
	}
}

func (c *Client) read() (string, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		msg, err := c.read()
		if err != nil || msg == "" {
			return
		}
		switch enginePacketType(msg[0]) {
		case enginePing:
			_ = c.writeText(string(enginePong))
		case engineClose:
			return
		case engineMessage:
			payload := msg[1:]
			if payload == "" {
				continue
			}
			switch socketPacketType(payload[0]) {
			case socketDisconnect:
				return
			case socketEvent:
				pkt, err := parseEventPacket(payload)
				if err == nil && c.onEvent != nil {
					c.onEvent(pkt.Event, pkt.Args)
				}
			}
		}
	}
}

func (c *Client) Emit(event string, args ...any) error {
	packet, err := buildEventPacket("/", nil, event, args...)
	if err != nil {
		return err
	}
	return c.writeText(string(engineMessage) + packet)
}

func (c *Client) writeText(msg string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Done is closed once the connection is gone, whichever side ended it.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}
