package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/datastream/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is a relay signaling server. A peer connects at /<id>; each text
// frame it sends names the destination peer in its "id" field. The server
// rewrites "id" to the sender's id and forwards the frame to the
// destination, so the receiver sees who the message came from.
type Server struct {
	log      *util.Logger
	listener net.Listener
	http     *http.Server

	mu    sync.Mutex
	peers map[string]*relayPeer
}

type relayPeer struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (p *relayPeer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *relayPeer) kick(reason string) {
	p.mu.Lock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
	p.mu.Unlock()
	p.conn.Close()
}

// NewServer creates a relay server. log may be nil.
func NewServer(log *util.Logger) *Server {
	return &Server{
		log:   log.With("component", "relay"),
		peers: make(map[string]*relayPeer),
	}
}

// Handler returns the HTTP handler serving peer connections.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWS)
}

// Start begins listening on addr (":0" picks a free port) and returns the
// bound address.
func (s *Server) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}
	s.listener = listener
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("relay server stopped", "err", err)
		}
	}()

	return listener.Addr(), nil
}

// Peers returns the number of connected peers.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Close stops accepting connections and disconnects every peer.
func (s *Server) Close() error {
	var err error
	if s.http != nil {
		err = s.http.Close()
	}

	s.mu.Lock()
	peers := make([]*relayPeer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = make(map[string]*relayPeer)
	s.mu.Unlock()

	for _, p := range peers {
		p.conn.Close()
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(r.URL.Path, "/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "peer id required in path", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	peer := &relayPeer{id: id, conn: conn}

	// A reconnecting peer replaces its stale session.
	s.mu.Lock()
	prev := s.peers[id]
	s.peers[id] = peer
	s.mu.Unlock()
	if prev != nil {
		prev.kick("replaced by a newer connection")
	}

	s.log.Info("peer connected", "id", id, "addr", r.RemoteAddr)
	s.serve(peer)
}

// serve relays frames from peer until its connection ends.
func (s *Server) serve(peer *relayPeer) {
	defer func() {
		s.mu.Lock()
		if s.peers[peer.id] == peer {
			delete(s.peers, peer.id)
		}
		s.mu.Unlock()
		peer.conn.Close()
		s.log.Info("peer disconnected", "id", peer.id)
	}()

	for {
		typ, data, err := peer.conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		out, dest, err := readdress(data, peer.id)
		if err != nil {
			s.log.Warn("dropping frame", "from", peer.id, "err", err)
			continue
		}

		s.mu.Lock()
		target := s.peers[dest]
		s.mu.Unlock()

		if target == nil {
			s.log.Debug("destination not connected", "from", peer.id, "to", dest)
			continue
		}
		if err := target.write(out); err != nil {
			s.log.Warn("forward failed", "from", peer.id, "to", dest, "err", err)
		}
	}
}

// readdress returns the frame with "id" replaced by from, plus the original
// destination id. Other fields pass through untouched.
func readdress(data []byte, from string) ([]byte, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	raw, ok := fields["id"]
	if !ok {
		return nil, "", fmt.Errorf("%w: id", ErrMissingField)
	}
	var dest string
	if err := json.Unmarshal(raw, &dest); err != nil || dest == "" {
		return nil, "", fmt.Errorf("%w: id", ErrMissingField)
	}

	src, _ := json.Marshal(from)
	fields["id"] = src

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, "", err
	}
	return out, dest, nil
}
