package protocol

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/remnetwork/dvm-miner/src/common"
	"github.com/ugorji/go/codec"
)

// Each message is framed by a single byte that indicates the message type,
// followed by a big-endian uint32 body length and the canonically-encoded
// JSON body. Canonical encoding sorts map keys, so an encoded message is a
// deterministic function of its contents; the challenge digest relies on the
// same property.

// MaxFrameSize bounds the body length of a single frame. Anything larger is
// treated as a protocol violation rather than allocated.
const MaxFrameSize = 32 << 20

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

// Marshal returns the canonical encoding of v.
func Marshal(v interface{}) ([]byte, error) {
	var b []byte
	enc := codec.NewEncoderBytes(&b, jsonHandle())
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

// Unmarshal decodes canonical JSON into v.
func Unmarshal(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, jsonHandle())
	return dec.Decode(v)
}

// WriteMessage encodes msg onto w and flushes.
func WriteMessage(w *bufio.Writer, msg Message) error {
	body, err := Marshal(msg)
	if err != nil {
		return err
	}

	if err := w.WriteByte(byte(msg.WireType())); err != nil {
		return err
	}

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(body)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}

	if _, err := w.Write(body); err != nil {
		return err
	}

	return w.Flush()
}

// ReadMessage decodes the next message from r. An unknown type tag or an
// oversized frame is a protocol violation; the caller should tear the
// connection down rather than attempt to resynchronize the stream.
func ReadMessage(r *bufio.Reader) (Message, error) {
	t, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(size[:])
	if n > MaxFrameSize {
		return nil, common.NewMinerErr(common.ProtocolViolation, "frame of %d bytes exceeds limit", n)
	}

	var msg Message
	switch MsgType(t) {
	case RegisterType:
		msg = new(Register)
	case RegisterAckType:
		msg = new(RegisterAck)
	case HeartbeatType:
		msg = new(Heartbeat)
	case HeartbeatAckType:
		msg = new(HeartbeatAck)
	case ChallengeType:
		msg = new(Challenge)
	case ChallengeResponseType:
		msg = new(ChallengeResponse)
	case StoreRequestType:
		msg = new(StoreRequest)
	case StoreResponseType:
		msg = new(StoreResponse)
	case SearchQueryType:
		msg = new(SearchQuery)
	case SearchResultType:
		msg = new(SearchResult)
	case ErrorType:
		msg = new(Error)
	default:
		return nil, common.NewMinerErr(common.ProtocolViolation, "unknown message type %d", t)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	if err := Unmarshal(body, msg); err != nil {
		return nil, common.NewMinerErr(common.ProtocolViolation, "malformed %s body: %v", MsgType(t), err)
	}

	return msg, nil
}
