package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// streamPath is the push endpoint, relative to the API base URL.
const streamPath = "/watchlist/stream"

// TokenSource provides bearer tokens for the push connection.
type TokenSource interface {
	Token() (string, error)
}

// HTTPDial returns a DialFunc holding a long-lived HTTP event stream open.
// The returned body stays open until the server closes it or the context
// is canceled.
func HTTPDial(baseURL string, httpClient *http.Client, token TokenSource) DialFunc {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+streamPath, nil)
		if err != nil {
			return nil, fmt.Errorf("stream: creating request: %w", err)
		}

		tok, err := token.Token()
		if err != nil {
			return nil, fmt.Errorf("stream: obtaining token: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("stream: connecting: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()

			return nil, fmt.Errorf("stream: unexpected status %d", resp.StatusCode)
		}

		return resp.Body, nil
	}
}

// WebSocketDial returns a DialFunc connecting over WebSocket. The server
// sends the same event wire format as the HTTP stream, one or more lines
// per text message; websocket.NetConn flattens the messages into a byte
// stream the event scanner can consume.
func WebSocketDial(baseURL string, httpClient *http.Client, token TokenSource) DialFunc {
	wsURL := wsEndpoint(baseURL)

	return func(ctx context.Context) (io.ReadCloser, error) {
		tok, err := token.Token()
		if err != nil {
			return nil, fmt.Errorf("stream: obtaining token: %w", err)
		}

		opts := &websocket.DialOptions{
			HTTPClient: httpClient,
			HTTPHeader: http.Header{
				"Authorization": []string{"Bearer " + tok},
			},
		}

		conn, resp, err := websocket.Dial(ctx, wsURL, opts)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("stream: websocket dial (status %d): %w", resp.StatusCode, err)
			}

			return nil, fmt.Errorf("stream: websocket dial: %w", err)
		}

		// Reads past the default 32 KiB limit would kill the connection on
		// large change notifications.
		conn.SetReadLimit(1 << 20)

		return &wsBody{
			Reader: websocket.NetConn(ctx, conn, websocket.MessageText),
			ws:     conn,
		}, nil
	}
}

// wsEndpoint converts the API base URL scheme to the WebSocket equivalent
// and appends the stream path.
func wsEndpoint(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		baseURL = "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		baseURL = "ws://" + strings.TrimPrefix(baseURL, "http://")
	}

	return baseURL + streamPath
}

// wsBody adapts a WebSocket connection to the io.ReadCloser the event
// scanner expects, closing with a proper close frame.
type wsBody struct {
	io.Reader
	ws *websocket.Conn
}

func (b *wsBody) Close() error {
	return b.ws.Close(websocket.StatusNormalClosure, "")
}
