package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minervachain/minerva/foundation/blockchain/database"
)

// readDeadlineFactor is the number of ping intervals a peer may stay silent
// before the read loop gives up on it.
const readDeadlineFactor = 3

// Handler is the behavior the server needs from the chain state. The server
// never touches state directly, every inbound frame turns into one of these
// calls.
type Handler interface {
	HandleTransaction(tx database.SignedTx) error
	HandleBlock(block database.BlockData) error
	HandleBlocks(blocks []database.BlockData) error
	BlocksRange(from uint64, to uint64) []database.BlockData
	KnownHosts() []string
	NewPeerHost(host string)
}

// Config represents the set of mandatory settings to run the server.
type Config struct {
	NodeID       string
	Host         string
	ChainID      uint16
	PingInterval time.Duration
	Handler      Handler
	EvHandler    func(v string, args ...any)
}

// Server maintains the TCP listener and the arena of live connections.
// Other code holds only connection ids, never the sockets.
type Server struct {
	nodeID       string
	host         string
	chainID      uint16
	pingInterval time.Duration
	handler      Handler
	ev           func(v string, args ...any)

	listener net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}

	mu    sync.RWMutex
	conns map[string]*connection
	hosts map[string]string
}

// New constructs a server ready to be started.
func New(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}

	pingInterval := cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	srv := Server{
		nodeID:       cfg.NodeID,
		host:         cfg.Host,
		chainID:      cfg.ChainID,
		pingInterval: pingInterval,
		handler:      cfg.Handler,
		ev:           ev,
		shutdown:     make(chan struct{}),
		conns:        make(map[string]*connection),
		hosts:        make(map[string]string),
	}

	return &srv, nil
}

// Start begins accepting peer connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.host)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.accept()
	}()

	return nil
}

// Shutdown stops accepting connections, drops every peer and waits for the
// connection goroutines to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ev("network: shutdown: started")
	defer s.ev("network: shutdown: completed")

	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, c := range s.conns {
		c.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================

// ConnectPeers dials every specified host that isn't this node and isn't
// already connected.
func (s *Server) ConnectPeers(hosts []string) {
	for _, host := range hosts {
		if host == s.host {
			continue
		}

		s.mu.RLock()
		_, connected := s.hosts[host]
		s.mu.RUnlock()
		if connected {
			continue
		}

		if err := s.dial(host); err != nil {
			s.ev("network: connect: host[%s]: ERROR: %s", host, err)
		}
	}
}

// ConnectedHosts returns the advertised hosts of the live connections.
func (s *Server) ConnectedHosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hosts := make([]string, 0, len(s.hosts))
	for host := range s.hosts {
		hosts = append(hosts, host)
	}

	return hosts
}

// BroadcastTransaction shares a transaction with every connected peer.
func (s *Server) BroadcastTransaction(tx database.SignedTx) {
	s.broadcast(MsgNewTransaction, tx)
}

// BroadcastBlock shares a freshly minted block with every connected peer.
func (s *Server) BroadcastBlock(block database.BlockData) {
	s.broadcast(MsgNewBlock, block)
}

// RequestBlocks asks every connected peer for the specified inclusive range
// of blocks. Responses arrive through the handler.
func (s *Server) RequestBlocks(from uint64, to uint64) {
	s.broadcast(MsgGetBlocks, GetBlocksMsg{From: from, To: to})
}

// RequestPeers asks every connected peer for the hosts they know.
func (s *Server) RequestPeers() {
	s.broadcast(MsgGetPeers, nil)
}

func (s *Server) broadcast(msgType MsgType, payload any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.conns {
		c.enqueue(msgType, payload)
	}
}

// =============================================================================

// accept runs the listener loop. Each inbound socket gets its handshake on
// a fresh goroutine so a stalled dialer can't block the loop.
func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				s.ev("network: accept: ERROR: %s", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			// The inbound side speaks second: read their handshake, then
			// answer with ours.
			hs, err := s.readHandshake(conn)
			if err != nil {
				s.ev("network: accept: handshake: ERROR: %s", err)
				conn.Close()
				return
			}
			if err := s.writeHandshake(conn); err != nil {
				conn.Close()
				return
			}

			s.register(conn, hs)
		}()
	}
}

// dial makes an outbound connection. The dialing side speaks first.
func (s *Server) dial(host string) error {
	conn, err := net.DialTimeout("tcp", host, s.pingInterval)
	if err != nil {
		return err
	}

	if err := s.writeHandshake(conn); err != nil {
		conn.Close()
		return err
	}
	hs, err := s.readHandshake(conn)
	if err != nil {
		conn.Close()
		return err
	}

	s.register(conn, hs)

	return nil
}

func (s *Server) writeHandshake(conn net.Conn) error {
	hs := HandshakeMsg{
		NodeID:    s.nodeID,
		Version:   protocolVersion,
		ChainID:   s.chainID,
		Host:      s.host,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}

	conn.SetWriteDeadline(time.Now().Add(s.pingInterval))
	return WriteMessage(conn, MsgHandshake, hs)
}

func (s *Server) readHandshake(conn net.Conn) (HandshakeMsg, error) {
	conn.SetReadDeadline(time.Now().Add(s.pingInterval))
	msg, err := ReadMessage(conn)
	if err != nil {
		return HandshakeMsg{}, err
	}

	if msg.Type != MsgHandshake {
		return HandshakeMsg{}, fmt.Errorf("expected handshake, got type %d", msg.Type)
	}

	var hs HandshakeMsg
	if err := json.Unmarshal(msg.Payload, &hs); err != nil {
		return HandshakeMsg{}, err
	}

	if hs.Version != protocolVersion {
		return HandshakeMsg{}, fmt.Errorf("%w: got %d, exp %d", ErrWrongVersion, hs.Version, protocolVersion)
	}
	if hs.ChainID != s.chainID {
		return HandshakeMsg{}, fmt.Errorf("wrong chain id, got %d, exp %d", hs.ChainID, s.chainID)
	}
	if hs.NodeID == s.nodeID {
		return HandshakeMsg{}, errors.New("connected to self")
	}

	return hs, nil
}

// register places the established connection in the arena and starts its
// read, send and ping goroutines.
func (s *Server) register(conn net.Conn, hs HandshakeMsg) {
	c := &connection{
		id:   uuid.NewString(),
		host: hs.Host,
		conn: conn,
		send: make(chan frame, 100),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if _, exists := s.hosts[hs.Host]; exists {

		// A connection to this host raced us in. Keep the existing one.
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[c.id] = c
	s.hosts[hs.Host] = c.id
	s.mu.Unlock()

	s.handler.NewPeerHost(hs.Host)
	s.ev("network: peer connected: host[%s] conn[%s]", c.host, c.id)

	s.wg.Add(3)
	go func() { defer s.wg.Done(); s.readLoop(c) }()
	go func() { defer s.wg.Done(); s.sendLoop(c) }()
	go func() { defer s.wg.Done(); s.pingLoop(c) }()
}

// drop removes a connection from the arena and closes it.
func (s *Server) drop(c *connection) {
	s.mu.Lock()
	if _, exists := s.conns[c.id]; exists {
		delete(s.conns, c.id)
		if s.hosts[c.host] == c.id {
			delete(s.hosts, c.host)
		}
	}
	s.mu.Unlock()

	c.close()
	s.ev("network: peer disconnected: host[%s] conn[%s]", c.host, c.id)
}

// =============================================================================

// readLoop pulls frames off the socket until the peer goes silent past the
// deadline, sends something unreadable, or the connection is closed.
func (s *Server) readLoop(c *connection) {
	defer s.drop(c)

	for {
		c.conn.SetReadDeadline(time.Now().Add(readDeadlineFactor * s.pingInterval))

		msg, err := ReadMessage(c.conn)
		if err != nil {
			return
		}

		if err := s.dispatch(c, msg); err != nil {
			s.ev("network: dispatch: host[%s]: ERROR: %s", c.host, err)
			return
		}
	}
}

// sendLoop owns all writes to the socket.
func (s *Server) sendLoop(c *connection) {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.pingInterval))
			if err := WriteMessage(c.conn, f.msgType, f.payload); err != nil {
				s.drop(c)
				return
			}
		}
	}
}

// pingLoop keeps the connection warm so the peer's read deadline doesn't
// fire while things are quiet.
func (s *Server) pingLoop(c *connection) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.enqueue(MsgPing, nil)
		}
	}
}

// dispatch handles one inbound frame. A returned error ends the connection,
// handler failures are logged and the connection stays up.
func (s *Server) dispatch(c *connection, msg Message) error {
	switch msg.Type {
	case MsgPing:
		c.enqueue(MsgPong, nil)

	case MsgPong:

	case MsgGetPeers:
		c.enqueue(MsgPeers, PeersMsg{Hosts: s.handler.KnownHosts()})

	case MsgPeers:
		var peers PeersMsg
		if err := json.Unmarshal(msg.Payload, &peers); err != nil {
			return err
		}
		for _, host := range peers.Hosts {
			if host != s.host {
				s.handler.NewPeerHost(host)
			}
		}

	case MsgNewTransaction:
		var tx database.SignedTx
		if err := json.Unmarshal(msg.Payload, &tx); err != nil {
			return err
		}
		if err := s.handler.HandleTransaction(tx); err != nil {
			s.ev("network: dispatch: host[%s]: tx rejected: %s", c.host, err)
		}

	case MsgGetBlocks:
		var req GetBlocksMsg
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		c.enqueue(MsgBlocks, BlocksMsg{Blocks: s.handler.BlocksRange(req.From, req.To)})

	case MsgBlocks:
		var blocks BlocksMsg
		if err := json.Unmarshal(msg.Payload, &blocks); err != nil {
			return err
		}
		if err := s.handler.HandleBlocks(blocks.Blocks); err != nil {
			s.ev("network: dispatch: host[%s]: blocks rejected: %s", c.host, err)
		}

	case MsgNewBlock:
		var block database.BlockData
		if err := json.Unmarshal(msg.Payload, &block); err != nil {
			return err
		}
		if err := s.handler.HandleBlock(block); err != nil {
			s.ev("network: dispatch: host[%s]: block rejected: %s", c.host, err)
		}

	default:
		return fmt.Errorf("unknown message type %d", msg.Type)
	}

	return nil
}

// =============================================================================

// frame is one queued outbound message.
type frame struct {
	msgType MsgType
	payload any
}

// connection is one live peer socket. The send channel serializes writes, a
// full channel drops the frame rather than blocking the caller.
type connection struct {
	id   string
	host string
	conn net.Conn
	send chan frame
	done chan struct{}
	once sync.Once
}

func (c *connection) enqueue(msgType MsgType, payload any) {
	select {
	case c.send <- frame{msgType: msgType, payload: payload}:
	default:
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
