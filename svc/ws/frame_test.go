package ws

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
)

func maskedTextFrame(payload []byte) []byte {
	maskKey := [4]byte{0x37, 0xFA, 0x21, 0x3D}
	var buf bytes.Buffer
	buf.WriteByte(0x81)
	n := len(payload)
	switch {
	case n <= 125:
		buf.WriteByte(0x80 | byte(n))
	case n <= 0xFFFF:
		buf.WriteByte(0x80 | 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		buf.Write(ext[:])
	default:
		buf.WriteByte(0x80 | 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		buf.Write(ext[:])
	}
	buf.Write(maskKey[:])
	for i, b := range payload {
		buf.WriteByte(b ^ maskKey[i%4])
	}
	return buf.Bytes()
}

func TestReadFrameMaskedText(t *testing.T) {
	payload := []byte("Hello")
	opcode, got, err := ReadFrame(bytes.NewReader(maskedTextFrame(payload)), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if opcode != OpText {
		t.Fatalf("got opcode %#x, want OpText", opcode)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestReadFrameEmptyPayload(t *testing.T) {
	opcode, got, err := ReadFrame(bytes.NewReader(maskedTextFrame(nil)), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if opcode != OpText || len(got) != 0 {
		t.Fatalf("got opcode %#x payload %q", opcode, got)
	}
}

func TestReadFrameExtendedLengths(t *testing.T) {
	for _, n := range []int{126, 127, 65535, 65536, 70000} {
		payload := bytes.Repeat([]byte{'x'}, n)
		_, got, err := ReadFrame(bytes.NewReader(maskedTextFrame(payload)), 1<<20)
		if err != nil {
			t.Fatalf("length %d: %v", n, err)
		}
		if len(got) != n {
			t.Fatalf("length %d: got %d bytes", n, len(got))
		}
	}
}

func TestReadFrameUnmasked(t *testing.T) {
	// Unmasked frames are legal per the decoder; nothing to unmask.
	frame := []byte{0x81, 0x03, 'a', 'b', 'c'}
	opcode, got, err := ReadFrame(bytes.NewReader(frame), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if opcode != OpText || string(got) != "abc" {
		t.Fatalf("got opcode %#x payload %q", opcode, got)
	}
}

func TestReadFrameCloseOpcode(t *testing.T) {
	frame := []byte{0x88, 0x80, 0, 0, 0, 0}
	opcode, _, err := ReadFrame(bytes.NewReader(frame), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if opcode != OpClose {
		t.Fatalf("got opcode %#x, want OpClose", opcode)
	}
}

func TestReadFrameFINIgnored(t *testing.T) {
	// FIN clear: still decoded as one complete text message.
	frame := []byte{0x01, 0x02, 'h', 'i'}
	opcode, got, err := ReadFrame(bytes.NewReader(frame), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if opcode != OpText || string(got) != "hi" {
		t.Fatalf("got opcode %#x payload %q", opcode, got)
	}
}

func TestReadFramePayloadLimit(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 200)
	_, _, err := ReadFrame(bytes.NewReader(maskedTextFrame(payload)), 100)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("got %v, want ErrPayloadTooLarge", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	full := maskedTextFrame([]byte("hello"))
	for cut := 1; cut < len(full); cut++ {
		if _, _, err := ReadFrame(bytes.NewReader(full[:cut]), 1<<20); err == nil {
			t.Fatalf("truncation at %d bytes decoded without error", cut)
		}
	}
}

func TestWriteTextTiers(t *testing.T) {
	cases := []struct {
		n      int
		header []byte
	}{
		{0, []byte{0x81, 0x00}},
		{125, []byte{0x81, 125}},
		{126, []byte{0x81, 126, 0x00, 126}},
		{65535, []byte{0x81, 126, 0xFF, 0xFF}},
		{65536, []byte{0x81, 127, 0, 0, 0, 0, 0, 1, 0, 0}},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		payload := bytes.Repeat([]byte{'z'}, tc.n)
		if err := WriteText(&buf, payload); err != nil {
			t.Fatal(err)
		}
		out := buf.Bytes()
		if !bytes.HasPrefix(out, tc.header) {
			t.Fatalf("n=%d: header %x, want prefix %x", tc.n, out[:len(tc.header)], tc.header)
		}
		if len(out) != len(tc.header)+tc.n {
			t.Fatalf("n=%d: frame length %d", tc.n, len(out))
		}
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"type":"update","text":"hello"}`)
	if err := WriteText(&buf, payload); err != nil {
		t.Fatal(err)
	}
	opcode, got, err := ReadFrame(&buf, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if opcode != OpText || !bytes.Equal(got, payload) {
		t.Fatalf("got opcode %#x payload %q", opcode, got)
	}
}

func TestAcceptKey(t *testing.T) {
	// Known vector from RFC 6455 section 1.3.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
