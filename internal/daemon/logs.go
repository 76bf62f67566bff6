package daemon

import (
	"context"
	"encoding/json"
	"strings"

	"hostpanel/internal/model"
	"hostpanel/internal/socketio"
)

const EventLogs = "servers/logs"

// LogStream is an open upstream log channel for one container.
type LogStream interface {
	Done() <-chan struct{}
	Close() error
}

// SocketURL is the daemon's realtime endpoint for node.
func SocketURL(node model.Node) string {
	base := BaseURL(node)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return socketio.EndpointURL(base)
}

// StreamLogs connects to the daemon with the shared secret and subscribes to
// containerID's logs. onLogs receives every servers/logs payload verbatim.
func (g *Gateway) StreamLogs(ctx context.Context, node model.Node, containerID string, onLogs func(json.RawMessage)) (LogStream, error) {
	dialCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := socketio.Dial(dialCtx, SocketURL(node), map[string]string{"token": g.secret}, func(event string, args []json.RawMessage) {
		if event != EventLogs || len(args) == 0 {
			return
		}
		onLogs(args[0])
	})
	if err != nil {
		g.logger.Warnw("daemon log stream failed", "node", node.ID, "error", err)
		return nil, &Error{Code: CodeCouldNotConnect, Message: "Could not connect to node", Unavailable: true, Err: err}
	}
	if err := client.Emit(EventLogs, containerID); err != nil {
		_ = client.Close()
		return nil, &Error{Code: CodeCouldNotConnect, Message: "Could not connect to node", Unavailable: true, Err: err}
	}
	return client, nil
}
