package signaling

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// dial connects to the given WebSocket URL, e.g.:
//
//	wss://signal.example.com/alice
func dial(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header) (*websocket.Conn, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to WS server (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, nil
}
