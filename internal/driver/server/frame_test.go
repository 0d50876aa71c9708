package server

import (
	"bytes"
	"testing"

	"github.com/cmake-mcp/cmake-mcp/internal/errors"
)

func frame(payload string) []byte {
	return encodeFrame([]byte(payload))
}

func TestExtractFrameCompleteMessage(t *testing.T) {
	buf := frame(`{"type":"hello"}`)

	payload, rest, err := ExtractFrame(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != `{"type":"hello"}` {
		t.Errorf("payload = %q", payload)
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		t.Errorf("rest = %q, want empty", rest)
	}
}

func TestExtractFrameIncompleteWaitsForMoreBytes(t *testing.T) {
	full := frame(`{"type":"reply","cookie":"abc"}`)

	// Every prefix that truncates the epilogue must yield nil payload, nil
	// error. The final byte of the encoded frame is a trailing newline, so
	// the epilogue is only incomplete up to len-2.
	for cut := 0; cut < len(full)-1; cut++ {
		payload, rest, err := ExtractFrame(full[:cut])
		if err != nil {
			t.Fatalf("cut %d: unexpected error: %v", cut, err)
		}
		if payload != nil {
			t.Fatalf("cut %d: got payload %q from incomplete frame", cut, payload)
		}
		if !bytes.Equal(rest, full[:cut]) {
			t.Fatalf("cut %d: remainder altered", cut)
		}
	}
}

func TestExtractFrameCoalescedMessages(t *testing.T) {
	buf := append(frame(`{"n":1}`), frame(`{"n":2}`)...)

	first, rest, err := ExtractFrame(buf)
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}
	if string(first) != `{"n":1}` {
		t.Errorf("first payload = %q", first)
	}

	second, rest, err := ExtractFrame(rest)
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if string(second) != `{"n":2}` {
		t.Errorf("second payload = %q", second)
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		t.Errorf("rest = %q, want empty", rest)
	}
}

func TestExtractFrameEpilogueBeforePrologueIsFatal(t *testing.T) {
	buf := []byte(frameEpilogue + "\n" + framePrologue + "\n{}\n")

	_, _, err := ExtractFrame(buf)
	if !errors.Is(err, errors.CodeProtocolFraming) {
		t.Fatalf("err = %v, want protocol framing error", err)
	}
}

func TestExtractFrameEmptyPayloadIsFatal(t *testing.T) {
	buf := []byte(framePrologue + "\n\n" + frameEpilogue + "\n")

	_, _, err := ExtractFrame(buf)
	if !errors.Is(err, errors.CodeProtocolFraming) {
		t.Fatalf("err = %v, want protocol framing error", err)
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	payload, rest, err := ExtractFrame(encodeFrame([]byte(`{"type":"handshake"}`)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != `{"type":"handshake"}` {
		t.Errorf("payload = %q", payload)
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		t.Errorf("rest = %q, want empty", rest)
	}
}
