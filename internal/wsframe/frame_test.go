package wsframe

import (
	"bytes"
	"crypto/rand"
	mrand "math/rand"
	"testing"
)

func TestAcceptKey(t *testing.T) {
	// RFC 6455 §1.3 worked example.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("AcceptKey = %q, want %q", got, want)
	}
}

// maskedClientFrame builds a masked client->server frame for test input.
func maskedClientFrame(opcode Opcode, payload []byte) []byte {
	var key [4]byte
	rand.Read(key[:])
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ key[i%4]
	}

	var buf bytes.Buffer
	b0 := byte(0x80) | byte(opcode)
	buf.WriteByte(b0)

	n := len(payload)
	switch {
	case n < 126:
		buf.WriteByte(0x80 | byte(n))
	case n <= 0xFFFF:
		buf.WriteByte(0x80 | 126)
		buf.WriteByte(byte(n >> 8))
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(0x80 | 127)
		for i := 7; i >= 0; i-- {
			buf.WriteByte(byte(n >> (8 * i)))
		}
	}
	buf.Write(key[:])
	buf.Write(masked)
	return buf.Bytes()
}

func TestRoundTripText(t *testing.T) {
	for _, s := range []string{"", "hello", "unicode: é中文", string(make([]byte, 1000))} {
		raw := maskedClientFrame(OpText, []byte(s))
		f, err := ReadFrame(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("ReadFrame(%q): %v", s, err)
		}
		if !f.Fin {
			t.Errorf("Fin = false, want true")
		}
		if f.Opcode != OpText {
			t.Errorf("Opcode = %v, want OpText", f.Opcode)
		}
		if string(f.Payload) != s {
			t.Errorf("Payload = %q, want %q", f.Payload, s)
		}
	}
}

func TestRoundTripRandomLengths(t *testing.T) {
	r := mrand.New(mrand.NewSource(1))
	for i := 0; i < 50; i++ {
		n := r.Intn(70000)
		payload := make([]byte, n)
		r.Read(payload)
		// Not asserting UTF-8 validity here — this test exercises the frame
		// layer only, which round-trips arbitrary bytes under a text opcode.
		raw := maskedClientFrame(OpText, payload)
		f, err := ReadFrame(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		if !bytes.Equal(f.Payload, payload) {
			t.Fatalf("len %d: payload mismatch", n)
		}
	}
}

func TestWriteFrameMinimalLength(t *testing.T) {
	cases := []struct {
		n         int
		wantBytes int // header length
	}{
		{0, 2},
		{125, 2},
		{126, 4},
		{65535, 4},
		{65536, 10},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, OpText, make([]byte, c.n)); err != nil {
			t.Fatalf("n=%d: %v", c.n, err)
		}
		got := buf.Len() - c.n
		if got != c.wantBytes {
			t.Errorf("n=%d: header len = %d, want %d", c.n, got, c.wantBytes)
		}
		if buf.Bytes()[1]&0x80 != 0 {
			t.Errorf("n=%d: server frame must not be masked", c.n)
		}
	}
}

func TestUnmaskedClientFrameRejected(t *testing.T) {
	// Manually build an unmasked frame (mask bit = 0).
	raw := []byte{0x81, 0x05, 'h', 'e', 'l', 'l', 'o'}
	_, err := ReadFrame(bytes.NewReader(raw))
	ce, ok := err.(*CloseError)
	if !ok || ce.Code != CloseProtocolError {
		t.Fatalf("err = %v, want CloseError{1002}", err)
	}
}

func TestRSVBitsRejected(t *testing.T) {
	raw := maskedClientFrame(OpText, []byte("hi"))
	raw[0] |= 0x40 // set RSV1
	_, err := ReadFrame(bytes.NewReader(raw))
	ce, ok := err.(*CloseError)
	if !ok || ce.Code != CloseProtocolError {
		t.Fatalf("err = %v, want CloseError{1002}", err)
	}
}

func TestBinaryFrameRejected(t *testing.T) {
	raw := maskedClientFrame(OpBinary, []byte{1, 2, 3})
	_, err := ReadFrame(bytes.NewReader(raw))
	ce, ok := err.(*CloseError)
	if !ok || ce.Code != CloseUnsupportedData {
		t.Fatalf("err = %v, want CloseError{1003}", err)
	}
}

func TestOversizedPayloadRejected(t *testing.T) {
	raw := maskedClientFrame(OpText, make([]byte, MaxPayload+1))
	_, err := ReadFrame(bytes.NewReader(raw))
	ce, ok := err.(*CloseError)
	if !ok || ce.Code != CloseMessageTooBig {
		t.Fatalf("err = %v, want CloseError{1009}", err)
	}
}

func TestFragmentedControlFrameRejected(t *testing.T) {
	raw := maskedClientFrame(OpPing, []byte("hi"))
	raw[0] &^= 0x80 // clear FIN
	_, err := ReadFrame(bytes.NewReader(raw))
	ce, ok := err.(*CloseError)
	if !ok || ce.Code != CloseProtocolError {
		t.Fatalf("err = %v, want CloseError{1002}", err)
	}
}

func TestOversizedControlFrameRejected(t *testing.T) {
	raw := maskedClientFrame(OpPing, make([]byte, 126))
	_, err := ReadFrame(bytes.NewReader(raw))
	ce, ok := err.(*CloseError)
	if !ok || ce.Code != CloseProtocolError {
		t.Fatalf("err = %v, want CloseError{1002}", err)
	}
}

func TestParseClosePayload(t *testing.T) {
	if code, reason, err := ParseClosePayload(nil); err != nil || code != 0 || reason != "" {
		t.Errorf("empty payload: %d %q %v", code, reason, err)
	}

	if _, _, err := ParseClosePayload([]byte{0x03}); err == nil {
		t.Error("1-byte close payload should be rejected")
	} else if ce := err.(*CloseError); ce.Code != CloseProtocolError {
		t.Errorf("code = %d, want 1002", ce.Code)
	}

	ok := []byte{0x03, 0xE8, 'b', 'y', 'e'} // 1000 "bye"
	code, reason, err := ParseClosePayload(ok)
	if err != nil || code != 1000 || reason != "bye" {
		t.Errorf("valid close payload: %d %q %v", code, reason, err)
	}

	bad := []byte{0x00, 0x05} // 5 is not an allowed close code
	if _, _, err := ParseClosePayload(bad); err == nil {
		t.Error("close code 5 should be rejected")
	} else if ce := err.(*CloseError); ce.Code != CloseProtocolError {
		t.Errorf("code = %d, want 1002", ce.Code)
	}

	appCode := []byte{0x0B, 0xB8} // 3000, app-defined range
	if _, _, err := ParseClosePayload(appCode); err != nil {
		t.Errorf("app-defined close code rejected: %v", err)
	}

	badUTF8 := []byte{0x03, 0xE8, 0xFF, 0xFE}
	if _, _, err := ParseClosePayload(badUTF8); err == nil {
		t.Error("invalid UTF-8 close reason should be rejected")
	} else if ce := err.(*CloseError); ce.Code != CloseInvalidPayload {
		t.Errorf("code = %d, want 1007", ce.Code)
	}
}
