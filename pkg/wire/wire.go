// Package wire implements the self-describing binary encoding and framing
// that the engine uses to talk to its host, per spec.md §6: integers, floats,
// byte strings, text, lists, dictionaries, booleans and null, wrapped in a
// length-prefixed (code, body) message. The framing follows the same manual
// io.ReadFull style the teacher's MySQL packet layer uses for its own
// length-prefixed packets, generalized from a 3-byte MySQL payload length to
// a 4-byte one since engine messages can be considerably larger than a
// single MySQL packet.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Code identifies the kind of message carried by a Frame, per spec.md §6.
type Code uint8

const (
	// Call is a request: body = [name, ...args].
	Call Code = 1
	// Data is a successful reply: body = the return value.
	Data Code = 2
	// Exc is an error reply: body = "ErrorKind message".
	Exc Code = 3
)

func (c Code) String() string {
	switch c {
	case Call:
		return "CALL"
	case Data:
		return "DATA"
	case Exc:
		return "EXC"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// maxFrameLength guards against a corrupt or hostile length prefix causing an
// unbounded allocation; spec.md's messages are document bundles, not streams,
// so 256MiB is generous headroom.
const maxFrameLength = 256 << 20

// Frame is one (code, body) message as read off the wire, body already
// un-framed but not yet decoded into a Value.
type Frame struct {
	Code Code
	Body []byte
}

// WriteFrame writes length-prefixed framing around code and an
// already-encoded body: a 4-byte little-endian length (covering the code
// byte plus body), then the code byte, then body.
func WriteFrame(w io.Writer, code Code, body []byte) error {
	header := make([]byte, 5)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(body)+1))
	header[4] = byte(code)
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame, in the manner of the teacher's
// Packet.Unmarshal: read the fixed header with io.ReadFull, then read exactly
// that many payload bytes.
func ReadFrame(r io.Reader) (Frame, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return Frame{}, err
	}
	total := binary.LittleEndian.Uint32(lenBuf)
	if total == 0 {
		return Frame{}, fmt.Errorf("wire: frame has zero length, missing message code byte")
	}
	if total > maxFrameLength {
		return Frame{}, fmt.Errorf("wire: frame length %d exceeds limit %d", total, maxFrameLength)
	}
	payload := make([]byte, total)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Code: Code(payload[0]), Body: payload[1:]}, nil
}

// WriteMessage encodes value with Encode and writes it as one framed
// message.
func WriteMessage(w io.Writer, code Code, value interface{}) error {
	var buf bytes.Buffer
	if err := Encode(&buf, value); err != nil {
		return err
	}
	return WriteFrame(w, code, buf.Bytes())
}

// ReadMessage reads one frame and decodes its body as a Value.
func ReadMessage(r io.Reader) (Code, interface{}, error) {
	frame, err := ReadFrame(r)
	if err != nil {
		return 0, nil, err
	}
	value, err := Decode(bytes.NewReader(frame.Body))
	if err != nil {
		return 0, nil, err
	}
	return frame.Code, value, nil
}
