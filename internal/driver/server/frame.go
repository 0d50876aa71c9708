// Package server implements the socket-based cmake-server transport: a
// framed, cookie-correlated JSON message exchange with a spawned
// `cmake -E server` process.
//
// This package provides:
//   - ExtractFrame: pure extraction of one framed payload from a byte buffer
//   - Client: low-level message correlation, handshake state machine,
//     request/reply plumbing
//   - Driver: the transport strategy plugged into the driver core
package server

import (
	"bytes"

	"github.com/cmake-mcp/cmake-mcp/internal/errors"
)

// Each message travels as <prologue>\n<json>\n<epilogue>\n on the wire.
const (
	framePrologue = `[== "CMake Server" ==[`
	frameEpilogue = `]== "CMake Server" ==]`
)

// ExtractFrame attempts to extract the first complete frame from buf.
// It returns the JSON payload and the unconsumed remainder. A nil payload
// with nil error means no complete frame has arrived yet; the caller keeps
// the remainder (== buf) and retries after the next read. An epilogue with
// no preceding prologue is a fatal protocol error.
func ExtractFrame(buf []byte) (payload, rest []byte, err error) {
	start := bytes.Index(buf, []byte(framePrologue))
	end := bytes.Index(buf, []byte(frameEpilogue))

	if end >= 0 && (start < 0 || end < start) {
		return nil, buf, errors.ProtocolFraming("epilogue before prologue")
	}
	if start < 0 || end < 0 {
		return nil, buf, nil // incomplete, wait for more bytes
	}

	payload = bytes.TrimSpace(buf[start+len(framePrologue) : end])
	if len(payload) == 0 {
		return nil, buf, errors.ProtocolFraming("empty payload between prologue and epilogue")
	}

	rest = buf[end+len(frameEpilogue):]
	return payload, rest, nil
}

// encodeFrame wraps a JSON payload in the wire framing.
func encodeFrame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+len(framePrologue)+len(frameEpilogue)+3)
	out = append(out, framePrologue...)
	out = append(out, '\n')
	out = append(out, payload...)
	out = append(out, '\n')
	out = append(out, frameEpilogue...)
	out = append(out, '\n')
	return out
}
