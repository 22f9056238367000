package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/minervachain/minerva/foundation/blockchain/database"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// testHandler records the handler calls the server makes.
type testHandler struct {
	mu    sync.Mutex
	hosts []string
}

func (h *testHandler) HandleTransaction(tx database.SignedTx) error     { return nil }
func (h *testHandler) HandleBlock(block database.BlockData) error       { return nil }
func (h *testHandler) HandleBlocks(blocks []database.BlockData) error   { return nil }
func (h *testHandler) BlocksRange(from uint64, to uint64) []database.BlockData { return nil }

func (h *testHandler) KnownHosts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.hosts...)
}

func (h *testHandler) NewPeerHost(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hosts = append(h.hosts, host)
}

// =============================================================================

// startTestServer runs a server on a loopback port picked by the kernel.
func startTestServer(t *testing.T, nodeID string, pingInterval time.Duration) (*Server, string) {
	t.Helper()

	srv, err := New(Config{
		NodeID:       nodeID,
		Host:         "127.0.0.1:0",
		ChainID:      29,
		PingInterval: pingInterval,
		Handler:      &testHandler{},
	})
	if err != nil {
		t.Fatalf("unable to construct server: %v", err)
	}

	if err := srv.Start(); err != nil {
		t.Fatalf("unable to start server: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	return srv, srv.listener.Addr().String()
}

// handshake dials like a peer would: write our handshake, read theirs back.
func handshake(conn net.Conn, hs HandshakeMsg) error {
	if err := WriteMessage(conn, MsgHandshake, hs); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := ReadMessage(conn)
	if err != nil {
		return err
	}
	if msg.Type != MsgHandshake {
		return fmt.Errorf("expected handshake reply, got type %d", msg.Type)
	}

	return nil
}

// readUntilClosed drains frames until the server drops the connection.
func readUntilClosed(conn net.Conn) error {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, err := ReadMessage(conn); err != nil {
			return err
		}
	}
}

// =============================================================================

func Test_Handshake(t *testing.T) {
	t.Log("Given the need to gate connections at the handshake.")
	{
		srv, addr := startTestServer(t, "node-a", time.Minute)

		rejects := []struct {
			name string
			hs   HandshakeMsg
		}{
			{"wrong protocol version", HandshakeMsg{NodeID: "node-b", Version: protocolVersion + 1, ChainID: 29, Host: "127.0.0.1:1000"}},
			{"wrong chain id", HandshakeMsg{NodeID: "node-b", Version: protocolVersion, ChainID: 99, Host: "127.0.0.1:1000"}},
			{"own node id", HandshakeMsg{NodeID: "node-a", Version: protocolVersion, ChainID: 29, Host: "127.0.0.1:1000"}},
		}

		for i, reject := range rejects {
			t.Logf("\tTest %d:\tWhen the handshake carries a %s.", i, reject.name)
			{
				conn, err := net.Dial("tcp", addr)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to dial the server: %v", failed, i, err)
				}
				defer conn.Close()

				if err := handshake(conn, reject.hs); err == nil {
					t.Fatalf("\t%s\tTest %d:\tShould be disconnected at the handshake.", failed, i)
				}
				t.Logf("\t%s\tTest %d:\tShould be disconnected at the handshake.", success, i)

				if len(srv.ConnectedHosts()) != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould not register the connection.", failed, i)
				}
				t.Logf("\t%s\tTest %d:\tShould not register the connection.", success, i)
			}
		}

		t.Logf("\tTest 3:\tWhen the handshake is valid.")
		{
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to dial the server: %v", failed, err)
			}
			defer conn.Close()

			hs := HandshakeMsg{NodeID: "node-b", Version: protocolVersion, ChainID: 29, Host: "127.0.0.1:1000"}
			if err := handshake(conn, hs); err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould complete the handshake: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould complete the handshake.", success)

			// Registration runs right after the reply, give it a moment.
			deadline := time.Now().Add(5 * time.Second)
			for len(srv.ConnectedHosts()) == 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			hosts := srv.ConnectedHosts()
			if len(hosts) != 1 || hosts[0] != "127.0.0.1:1000" {
				t.Fatalf("\t%s\tTest 3:\tShould register the advertised host: %v", failed, hosts)
			}
			t.Logf("\t%s\tTest 3:\tShould register the advertised host.", success)
		}
	}
}

func Test_UnknownMessageType(t *testing.T) {
	t.Log("Given the need to drop peers that speak garbage.")
	{
		t.Logf("\tTest 0:\tWhen a connected peer sends an unknown message type.")
		{
			srv, addr := startTestServer(t, "node-a", time.Minute)

			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to dial the server: %v", failed, err)
			}
			defer conn.Close()

			hs := HandshakeMsg{NodeID: "node-b", Version: protocolVersion, ChainID: 29, Host: "127.0.0.1:1000"}
			if err := handshake(conn, hs); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould complete the handshake: %v", failed, err)
			}

			if err := WriteMessage(conn, MsgPing, nil); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to send a ping: %v", failed, err)
			}

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			msg, err := ReadMessage(conn)
			if err != nil || msg.Type != MsgPong {
				t.Fatalf("\t%s\tTest 0:\tShould get a pong back: %v %v", failed, msg.Type, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get a pong back.", success)

			if err := WriteMessage(conn, MsgType(0xEE), nil); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to send the frame: %v", failed, err)
			}

			if err := readUntilClosed(conn); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould be disconnected after an unknown type.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be disconnected after an unknown type.", success)

			deadline := time.Now().Add(5 * time.Second)
			for len(srv.ConnectedHosts()) != 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			if len(srv.ConnectedHosts()) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould remove the connection from the arena.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould remove the connection from the arena.", success)
		}
	}
}

func Test_SilentPeerDropped(t *testing.T) {
	t.Log("Given the need to drop peers that go silent.")
	{
		t.Logf("\tTest 0:\tWhen a connected peer stops sending frames.")
		{
			srv, addr := startTestServer(t, "node-a", 50*time.Millisecond)

			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to dial the server: %v", failed, err)
			}
			defer conn.Close()

			hs := HandshakeMsg{NodeID: "node-b", Version: protocolVersion, ChainID: 29, Host: "127.0.0.1:1000"}
			if err := handshake(conn, hs); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould complete the handshake: %v", failed, err)
			}

			// Stay silent. The server keeps pinging but our side sends nothing,
			// so its read deadline fires after three ping intervals.
			if err := readUntilClosed(conn); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould be disconnected after the read deadline.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be disconnected after the read deadline.", success)

			deadline := time.Now().Add(5 * time.Second)
			for len(srv.ConnectedHosts()) != 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			if len(srv.ConnectedHosts()) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould remove the connection from the arena.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould remove the connection from the arena.", success)
		}
	}
}
