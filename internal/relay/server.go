package relay

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/yamux"
)

// Server accepts relay client connections for local testing and development,
// grounded on internal/bridge/server.go's Server ("a mockup of
// the Ricochet Cloud part for testing"). Its handleWebSocket upgrade and
// yamux.Server wiring carry over unchanged; the gRPC service registration it
// layered on top is replaced by a direct Event read loop that passes each
// Event to OnEvent and acks heartbeats, since the
// real control plane this tunnel dials out to is external to this module.
type Server struct {
	upgrader websocket.Upgrader
	addr     string

	// OnEvent, if set, is invoked for every Event received from a client.
	OnEvent func(ev Event)
	Logf    func(format string, args ...any)
}

func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		Logf: func(string, ...any) {},
	}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/relay", s.handleWebSocket)

	httpServer := &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	s.Logf("relay: server listening on %s", s.addr)
	return httpServer.ListenAndServe()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	expected := os.Getenv("ARCRELAY_RELAY_SECRET")
	if expected != "" && r.Header.Get("X-Relay-Secret") != expected {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logf("relay: upgrade error: %v", err)
		return
	}

	rwc := newWSConn(conn)
	session, err := yamux.Server(rwc, nil)
	if err != nil {
		s.Logf("relay: yamux server error: %v", err)
		return
	}
	defer session.Close()

	stream, err := session.Accept()
	if err != nil {
		s.Logf("relay: yamux accept error: %v", err)
		return
	}
	defer stream.Close()

	fr := newFrameReader(stream)
	fw := newFrameWriter(stream)
	for {
		ev, err := fr.Read()
		if err != nil {
			s.Logf("relay: stream closed: %v", err)
			return
		}
		if s.OnEvent != nil {
			s.OnEvent(ev)
		}
		if ev.Kind == EventHeartbeat {
			if err := fw.Write(Event{Kind: EventAck, SessionID: ev.SessionID}); err != nil {
				return
			}
		}
	}
}

func (s *Server) String() string {
	return fmt.Sprintf("relay.Server{addr=%s}", s.addr)
}
