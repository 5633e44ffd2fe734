package console

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the byte stream over which the target's console is reached.
//
// Concrete transports (a TCP connection to a ser2net-style bridge, a
// websocket console server, a serial port adapter supplied by the caller)
// only need to provide raw reads and writes with a read deadline; all shell
// semantics live above this interface.
type Transport interface {
	io.ReadWriteCloser

	// SetReadDeadline bounds the next Read call. A Read past the deadline
	// returns an error satisfying os.ErrDeadlineExceeded or net.Error with
	// Timeout() == true.
	SetReadDeadline(t time.Time) error
}

// DefaultDialTimeout bounds transport connection establishment.
const DefaultDialTimeout = 10 * time.Second

// Dial opens a Transport for the given device URI.
//
// Supported schemes:
//
//	tcp://host:port     raw TCP byte stream (ser2net, telnetd in raw mode)
//	ws://host:port/path websocket console bridge (binary frames)
//	wss://...           websocket over TLS
//
// A bare "host:port" string is treated as tcp. Serial devices are not dialed
// here; callers with direct serial access provide their own Transport.
func Dial(device string) (Transport, error) {
	scheme := "tcp"
	rest := device

	if i := strings.Index(device, "://"); i >= 0 {
		scheme = device[:i]
		rest = device[i+3:]
	}

	switch scheme {
	case "tcp":
		conn, err := net.DialTimeout("tcp", rest, DefaultDialTimeout)
		if err != nil {
			return nil, &TransportError{Op: "dial", Device: device, Err: err}
		}
		return conn, nil

	case "ws", "wss":
		if _, err := url.Parse(device); err != nil {
			return nil, &TransportError{Op: "dial", Device: device, Err: err}
		}
		dialer := websocket.Dialer{HandshakeTimeout: DefaultDialTimeout}
		conn, _, err := dialer.Dial(device, nil)
		if err != nil {
			return nil, &TransportError{Op: "dial", Device: device, Err: err}
		}
		return newWebsocketTransport(conn, device), nil

	default:
		err := fmt.Errorf("unsupported transport scheme: %q", scheme)
		return nil, &TransportError{Op: "dial", Device: device, Err: err}
	}
}

// websocketTransport adapts a websocket connection to the Transport byte
// stream interface. Messages of either type are treated as an opaque byte
// stream; partial message content is buffered between Read calls.
//
// Incoming messages are pumped through a goroutine because the websocket
// library considers an expired read deadline fatal for the connection,
// while the console's quiet-read model relies on short deadline expiries
// being recoverable.
type websocketTransport struct {
	conn     *websocket.Conn
	device   string
	pending  []byte
	incoming chan []byte
	readErr  error
	deadline time.Time
}

func newWebsocketTransport(conn *websocket.Conn, device string) *websocketTransport {
	t := &websocketTransport{
		conn:     conn,
		device:   device,
		incoming: make(chan []byte, 64),
	}
	go t.pump()
	return t
}

// pump moves websocket messages onto the incoming channel until the
// connection fails or closes.
func (t *websocketTransport) pump() {
	defer close(t.incoming)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.readErr = err
			return
		}
		t.incoming <- data
	}
}

func (t *websocketTransport) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		var wait <-chan time.Time
		if !t.deadline.IsZero() {
			remaining := time.Until(t.deadline)
			if remaining <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
			timer := time.NewTimer(remaining)
			defer timer.Stop()
			wait = timer.C
		}

		select {
		case data, ok := <-t.incoming:
			if !ok {
				if t.readErr != nil {
					return 0, t.readErr
				}
				return 0, io.EOF
			}
			t.pending = data
		case <-wait:
			return 0, os.ErrDeadlineExceeded
		}
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *websocketTransport) Write(p []byte) (int, error) {
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *websocketTransport) SetReadDeadline(deadline time.Time) error {
	t.deadline = deadline
	return nil
}

func (t *websocketTransport) Close() error {
	// Best effort close frame; the peer may already be gone.
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
