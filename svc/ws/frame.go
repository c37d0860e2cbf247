package ws

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Opcodes from RFC 6455. Only text and close get special handling;
// everything else is read and discarded.
const (
	OpText  byte = 0x1
	OpClose byte = 0x8
)

var ErrPayloadTooLarge = errors.New("ws: frame payload exceeds limit")

// ReadFrame decodes a single frame from r. The FIN bit is ignored:
// every frame is treated as a complete message, there is no
// continuation reassembly. Client frames carry a 4-byte masking key
// which is XOR-applied to the payload.
func ReadFrame(r io.Reader, maxPayload int64) (opcode byte, payload []byte, err error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	opcode = header[0] & 0x0F
	masked := header[1]&0x80 != 0
	length := int64(header[1] & 0x7F)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, nil, err
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, nil, err
		}
		n := binary.BigEndian.Uint64(ext[:])
		if n > uint64(maxPayload) {
			return 0, nil, ErrPayloadTooLarge
		}
		length = int64(n)
	}
	if length > maxPayload {
		return 0, nil, ErrPayloadTooLarge
	}

	var maskKey [4]byte
	if masked {
		if _, err := io.ReadFull(r, maskKey[:]); err != nil {
			return 0, nil, err
		}
	}

	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}
	return opcode, payload, nil
}

// WriteText encodes payload as one unmasked text frame (FIN set,
// opcode 1) and writes it in a single call.
func WriteText(w io.Writer, payload []byte) error {
	n := len(payload)
	var header []byte
	switch {
	case n <= 125:
		header = []byte{0x81, byte(n)}
	case n <= 0xFFFF:
		header = []byte{0x81, 126, 0, 0}
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = []byte{0x81, 127, 0, 0, 0, 0, 0, 0, 0, 0}
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}
	frame := make([]byte, 0, len(header)+n)
	frame = append(frame, header...)
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}
