package relay

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/yamux"

	"github.com/arcrelay/bridge/internal/corerr"
)

// Client dials a remote relay endpoint and multiplexes chat events over one
// yamux session carried on one websocket connection, grounded on
// internal/bridge/client.go's dial-then-open-stream sequence, with its
// grpc.DialContext/proto.NewBridgeServiceClient layer replaced by a single
// long-lived yamux stream carrying newline-delimited JSON Events.
type Client struct {
	url       string
	sessionID string
	secret    string

	session *yamux.Session
	stream  *frameStream

	Incoming chan Event
}

type frameStream struct {
	w *frameWriter
	r *frameReader
	c interface{ Close() error }
}

// NewClient prepares a relay client for the given control-plane URL. secret
// authenticates the tunnel, mirroring the prior RICOCHET_BRIDGE_SECRET
// env var (renamed here to this module's own env namespace).
func NewClient(url, sessionID string) *Client {
	return &Client{
		url:       url,
		sessionID: sessionID,
		secret:    os.Getenv("ARCRELAY_RELAY_SECRET"),
		Incoming:  make(chan Event, 32),
	}
}

// Start dials the websocket, opens the yamux session and its one control
// stream, and begins the receive loop. It blocks until the initial
// handshake completes; the receive loop itself runs in a goroutine.
func (c *Client) Start(ctx context.Context) error {
	header := map[string][]string{"X-Relay-Secret": {c.secret}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return corerr.Wrap(corerr.KindInfrastructure, "relay.Client.Start", "websocket dial failed", err)
	}

	rwc := newWSConn(conn)
	session, err := yamux.Client(rwc, nil)
	if err != nil {
		return corerr.Wrap(corerr.KindInfrastructure, "relay.Client.Start", "yamux client session failed", err)
	}
	c.session = session

	stream, err := session.Open()
	if err != nil {
		return corerr.Wrap(corerr.KindInfrastructure, "relay.Client.Start", "yamux stream open failed", err)
	}
	c.stream = &frameStream{w: newFrameWriter(stream), r: newFrameReader(stream), c: stream}

	if err := c.stream.w.Write(Event{Kind: EventHeartbeat, SessionID: c.sessionID}); err != nil {
		return corerr.Wrap(corerr.KindInfrastructure, "relay.Client.Start", "initial heartbeat failed", err)
	}

	go c.receiveLoop()
	return nil
}

func (c *Client) receiveLoop() {
	defer close(c.Incoming)
	for {
		ev, err := c.stream.r.Read()
		if err != nil {
			return
		}
		c.Incoming <- ev
	}
}

// Send writes a chat event to the relay.
func (c *Client) Send(kind EventKind, chatKey string, payload []byte) error {
	if c.stream == nil {
		return corerr.New(corerr.KindInfrastructure, "relay.Client.Send", "relay not started")
	}
	return c.stream.w.Write(Event{Kind: kind, SessionID: c.sessionID, ChatKey: chatKey, Payload: payload})
}

// Heartbeat periodically sends a heartbeat event until ctx is cancelled,
// keeping the tunnel's intermediate proxies (if any) from idling it out.
func (c *Client) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Send(EventHeartbeat, "", nil)
		}
	}
}

// Close tears down the stream and underlying yamux session.
func (c *Client) Close() error {
	if c.stream != nil {
		_ = c.stream.c.Close()
	}
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("relay.Client{url=%s session=%s}", c.url, c.sessionID)
}
