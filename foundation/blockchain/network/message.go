// Package network implements the TCP peer protocol. Frames on the wire are
// a one byte message type, a four byte big endian payload length and a JSON
// payload.
package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/minervachain/minerva/foundation/blockchain/database"
)

// protocolVersion is carried in the handshake. Nodes speaking a different
// version are disconnected.
const protocolVersion uint16 = 1

// MaxFrameSize bounds the payload length a node is willing to read or
// write. Frames over this limit disconnect the peer.
const MaxFrameSize = 1 << 20

// MsgType identifies the payload carried by a frame. This numbering space
// is independent of the contract VM opcodes.
type MsgType byte

// Set of message types.
const (
	MsgHandshake      MsgType = 0
	MsgPing           MsgType = 1
	MsgPong           MsgType = 2
	MsgGetPeers       MsgType = 3
	MsgPeers          MsgType = 4
	MsgNewTransaction MsgType = 5
	MsgGetBlocks      MsgType = 6
	MsgBlocks         MsgType = 7
	MsgNewBlock       MsgType = 8
)

// Set of framing errors. Any of them ends the connection they occurred on.
var (
	ErrFrameTooLarge = errors.New("frame exceeds the maximum size")
	ErrWrongVersion  = errors.New("wrong protocol version")
)

// Message is one decoded frame.
type Message struct {
	Type    MsgType
	Payload []byte
}

// =============================================================================

// Set of payload types. Ping, Pong and GetPeers carry empty payloads.

// HandshakeMsg is the first frame on every connection, in both directions.
type HandshakeMsg struct {
	NodeID    string `json:"node_id"`
	Version   uint16 `json:"version"`
	ChainID   uint16 `json:"chain_id"`
	Host      string `json:"host"`
	TimeStamp uint64 `json:"timestamp"`
}

// PeersMsg carries the hosts a node knows about.
type PeersMsg struct {
	Hosts []string `json:"hosts"`
}

// GetBlocksMsg asks a peer for an inclusive range of blocks.
type GetBlocksMsg struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// BlocksMsg carries a run of blocks in chain order.
type BlocksMsg struct {
	Blocks []database.BlockData `json:"blocks"`
}

// =============================================================================

// WriteMessage marshals the payload and writes one frame. A nil payload
// writes an empty frame of the specified type.
func WriteMessage(w io.Writer, msgType MsgType, payload any) error {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	frame := make([]byte, 5+len(data))
	frame[0] = byte(msgType)
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(data)))
	copy(frame[5:], data)

	if _, err := w.Write(frame); err != nil {
		return err
	}

	return nil
}

// ReadMessage reads one frame. A short read or an oversized length header
// is an error, the caller is expected to drop the connection.
func ReadMessage(r io.Reader) (Message, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}

	length := binary.BigEndian.Uint32(header[1:5])
	if length > MaxFrameSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, err
	}

	return Message{
		Type:    MsgType(header[0]),
		Payload: payload,
	}, nil
}
