package ami

import (
	"bytes"
	"io"
)

// Parser reads an AMI byte stream, such as a wiretap capture, and emits
// the Events in it. Responses and banner lines are skipped.
type Parser struct {
	r   io.Reader
	buf []byte
	eof bool
}

// NewParser creates a Parser that reads from the given reader.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: r}
}

// Next reads the next event from the stream.
// Returns the event and true if an event was read, or a zero Event and false at EOF.
func (p *Parser) Next() (Event, bool) {
	chunk := make([]byte, readChunkSize)
	for {
		record, rest := ExtractRecord(p.buf)
		if record != nil {
			p.buf = rest
			if evt, ok := ParseRecord(record); ok {
				return evt, true
			}
			continue
		}

		if p.eof {
			// A capture may stop mid-record; keep what arrived.
			tail := p.buf
			p.buf = nil
			if len(bytes.TrimSpace(tail)) == 0 {
				return Event{}, false
			}
			return ParseRecord(tail)
		}

		n, err := p.r.Read(chunk)
		p.buf = append(p.buf, chunk[:n]...)
		if err != nil {
			p.eof = true
		}
	}
}

// ParseAll reads all events from the stream and returns them.
func (p *Parser) ParseAll() []Event {
	var events []Event
	for {
		evt, ok := p.Next()
		if !ok {
			break
		}
		events = append(events, evt)
	}
	return events
}

// ParseBytes is a convenience function that parses all events from a byte slice.
func ParseBytes(data []byte) []Event {
	return NewParser(bytes.NewReader(data)).ParseAll()
}
