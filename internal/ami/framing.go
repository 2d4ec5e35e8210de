package ami

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

var (
	crlfTerminator = []byte("\r\n\r\n")
	lfTerminator   = []byte("\n\n")
)

// ErrIncompleteRecord is returned when the peer closes the stream before a
// record terminator arrives.
var ErrIncompleteRecord = errors.New("ami: connection closed before end of record")

const readChunkSize = 4096

// ExtractRecord splits the first complete record off buf. A record ends at
// the first blank line, written as either CRLF CRLF or LF LF; when both
// terminators start at the same offset CRLF CRLF wins. The returned record
// includes its terminator. If buf holds no complete record, record is nil
// and rest is buf unchanged.
func ExtractRecord(buf []byte) (record, rest []byte) {
	crlf := bytes.Index(buf, crlfTerminator)
	lf := bytes.Index(buf, lfTerminator)

	var end int
	switch {
	case crlf < 0 && lf < 0:
		return nil, buf
	case lf < 0 || (crlf >= 0 && crlf <= lf):
		end = crlf + len(crlfTerminator)
	default:
		end = lf + len(lfTerminator)
	}
	return buf[:end], buf[end:]
}

// ParseRecord turns one framed record into an Event. Each non-blank line is
// split once on its first colon and both halves are trimmed; lines without
// a colon are skipped. Records without an Event header are responses, not
// events, and yield false.
func ParseRecord(record []byte) (Event, bool) {
	evt := parseHeaders(string(record))
	if _, ok := evt.Lookup("Event"); !ok {
		return Event{}, false
	}
	return evt, true
}

func parseHeaders(text string) Event {
	var evt Event
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		evt.set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return evt
}

// ParseResponse parses a response record (one without an Event header),
// such as the reply to Login.
func ParseResponse(record []byte) Event {
	return parseHeaders(string(record))
}

// ReadResponse reads from r until pending plus the bytes read hold one
// complete record. It returns that record and whatever followed it, which
// the caller must pass to the next read.
func ReadResponse(r io.Reader, pending []byte) (record, rest []byte, err error) {
	buf := pending
	chunk := make([]byte, readChunkSize)
	for {
		if record, rest := ExtractRecord(buf); record != nil {
			return record, rest, nil
		}
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			if record, rest := ExtractRecord(buf); record != nil {
				return record, rest, nil
			}
			if errors.Is(err, io.EOF) {
				return nil, buf, ErrIncompleteRecord
			}
			return nil, buf, err
		}
	}
}

// ReadLine reads a single line, such as the greeting banner the manager
// sends on connect. The line is returned without its line break.
func ReadLine(r io.Reader, pending []byte) (line string, rest []byte, err error) {
	buf := pending
	chunk := make([]byte, readChunkSize)
	for {
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			return strings.TrimRight(string(buf[:i]), "\r"), buf[i+1:], nil
		}
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil && bytes.IndexByte(buf, '\n') < 0 {
			if errors.Is(err, io.EOF) {
				return "", buf, ErrIncompleteRecord
			}
			return "", buf, err
		}
	}
}

// IsSuccess reports whether a raw response contains the literal success
// marker. The match is case-sensitive and may occur anywhere in the text.
func IsSuccess(response []byte) bool {
	return bytes.Contains(response, []byte("Success"))
}
