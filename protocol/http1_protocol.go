package protocol

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/nczempin/httpconn/errors"
)

const protocolVersion = "HTTP/1.0"

var (
	headerSeparator = []byte("\r\n\r\n")
	lengthKey       = []byte("\r\nLength: ")
)

// payloadMarkers are the bytes Read treats as the start of the payload.
const payloadMarkers = "\x01\x02\x03%"

// FormatPost renders req as a complete HTTP/1.0 POST message for host:port.
func FormatPost(req OutgoingRequest, host string, port int) []byte {
	buf := make([]byte, 0, 128+len(req.RemotePath)+len(host)+len(req.ContentType)+len(req.Payload))

	// Request line
	buf = fmt.Appendf(buf, "POST %s %s\r\n", req.RemotePath, protocolVersion)

	// Headers
	buf = fmt.Appendf(buf, "Host: %s:%d\r\n", host, port)
	buf = fmt.Appendf(buf, "Content-Type: %s\r\n", req.ContentType)
	buf = fmt.Appendf(buf, "Content-Length: %d\r\n", len(req.Payload))

	// Blank line, then the body untouched
	buf = append(buf, "\r\n"...)
	return append(buf, req.Payload...)
}

// ParseStatusCode reads the numeric code that follows the protocol version on
// the status line. It returns 0 when there is none.
func ParseStatusCode(chunk []byte) int {
	line := chunk
	if end := bytes.IndexByte(line, '\n'); end >= 0 {
		line = line[:end]
	}

	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return 0
	}
	code, ok := leadingInt(bytes.TrimLeft(line[sp+1:], " "))
	if !ok {
		return 0
	}
	return code
}

// CheckFraming verifies that a chunk holds exactly the number of bytes its
// transport declared.
func CheckFraming(data []byte, declared int) error {
	if declared != len(data) {
		return errors.NewProtocolError(
			errors.ProtocolErrorFramingMismatch,
			fmt.Sprintf("chunk declared %d bytes but holds %d", declared, len(data)),
		)
	}
	return nil
}

// DecodeChunk undoes percent-escaping in a chunk. A chunk with a malformed
// escape is returned as is.
func DecodeChunk(data []byte) []byte {
	if bytes.IndexByte(data, '%') < 0 {
		return append([]byte(nil), data...)
	}
	decoded, err := url.PathUnescape(string(data))
	if err != nil {
		return append([]byte(nil), data...)
	}
	return []byte(decoded)
}

// ExtractPayload drops everything up to and including the first payload
// marker byte. A result without a marker has no payload.
//
// The marker is a heuristic, not a protocol boundary: a body that starts
// with plain text before a marker loses that text.
func ExtractPayload(result []byte) []byte {
	i := bytes.IndexAny(result, payloadMarkers)
	if i < 0 {
		return nil
	}
	return append([]byte(nil), result[i+1:]...)
}

// Assembler accumulates the decoded bytes of one in-flight response.
type Assembler struct {
	buf []byte
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{buf: make([]byte, 0, 1024)}
}

// Len returns the number of buffered bytes.
func (a *Assembler) Len() int {
	return len(a.buf)
}

// Bytes returns the buffered bytes. The slice is only valid until the next
// call that modifies the assembler.
func (a *Assembler) Bytes() []byte {
	return a.buf
}

// Append adds decoded bytes to the response.
func (a *Assembler) Append(decoded []byte) {
	a.buf = append(a.buf, decoded...)
}

// Take returns a copy of the buffered bytes and empties the buffer.
func (a *Assembler) Take() []byte {
	out := append([]byte(nil), a.buf...)
	a.Reset()
	return out
}

// Reset empties the buffer.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
}

// Complete reports whether the buffer holds a whole response according to an
// explicit Length header. Without one it never reports completion; the peer
// closing the connection ends such a response.
func (a *Assembler) Complete() bool {
	expected, ok := a.ExpectedSize()
	return ok && len(a.buf) >= expected
}

// ExpectedSize returns header length plus the declared Length, if both are
// known yet.
func (a *Assembler) ExpectedSize() (int, bool) {
	sep := bytes.Index(a.buf, headerSeparator)
	if sep < 0 {
		return 0, false
	}
	headerLen := sep + len(headerSeparator)
	declared, ok := declaredLength(a.buf[:headerLen])
	// A total that does not fit an int is treated as no Length at all.
	if !ok || declared > math.MaxInt-headerLen {
		return 0, false
	}
	return declared + headerLen, true
}

// declaredLength finds the "Length: n" header in a header block. n counts
// body bytes only.
func declaredLength(headers []byte) (int, bool) {
	i := bytes.Index(headers, lengthKey)
	if i < 0 {
		return 0, false
	}
	return leadingInt(headers[i+len(lengthKey):])
}

// leadingInt parses the run of ASCII digits at the start of b.
func leadingInt(b []byte) (int, bool) {
	end := 0
	for end < len(b) && b[end] >= '0' && b[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(b[:end]))
	if err != nil {
		return 0, false
	}
	return n, true
}
