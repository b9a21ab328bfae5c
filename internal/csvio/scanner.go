// Package csvio frames a byte stream into complete CSV records and
// tokenises them into raw field slices.
//
// Framing follows RFC-4180: records end at LF or CRLF, a terminator inside
// a double-quoted field belongs to the field, and a double quote inside a
// quoted field is escaped by doubling it. The scanner carries an
// unterminated suffix across read boundaries, capped at a configurable
// record size.
package csvio

import (
	"fmt"
	"io"

	"github.com/raphaelgruber/parq/internal/faults"
)

// readSize is how much the scanner pulls from the underlying reader at a
// time. The upstream chunk reader already holds the large window; this
// buffer only needs to amortise call overhead.
const readSize = 256 * 1024

// Field is one raw CSV field. Bytes aliases the scanner's internal buffer
// and is only valid until the next call to Scan.
type Field struct {
	Bytes  []byte
	Quoted bool
}

// Record is one framed CSV record.
type Record struct {
	Fields []Field
	// Ordinal is the 1-based position of the record in the file, counting
	// the header.
	Ordinal int64
}

// MalformedError describes a single bad record. Callers count these
// against the bad-row budget rather than failing the stream.
type MalformedError struct {
	Ordinal int64
	Reason  string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Ordinal, e.Reason)
}

// Scanner frames records out of an io.Reader.
type Scanner struct {
	r         io.Reader
	buf       []byte
	start     int // scan position within buf
	eof       bool
	ordinal   int64
	expect    int // expected field count, 0 = unchecked
	maxRecord int
	fields    []Field
}

// NewScanner creates a scanner with the given carry-buffer cap.
func NewScanner(r io.Reader, maxRecordBytes int) *Scanner {
	return &Scanner{
		r:         r,
		buf:       make([]byte, 0, readSize*2),
		maxRecord: maxRecordBytes,
	}
}

// ReadHeader consumes the header record and returns the observed column
// names. Subsequent records are checked against the header's field count.
func (s *Scanner) ReadHeader() ([]string, error) {
	rec, err := s.Scan()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty csv: %w", faults.ErrSchemaMismatch)
		}
		return nil, err
	}
	names := make([]string, len(rec.Fields))
	for i, f := range rec.Fields {
		names[i] = string(f.Bytes)
	}
	s.expect = len(names)
	return names, nil
}

// Scan returns the next record. It returns io.EOF at the end of the
// stream, *MalformedError for records the bad-row policy should judge, and
// faults.ErrRecordTooLarge when a record outgrows the carry buffer. Field
// bytes are valid until the next call.
func (s *Scanner) Scan() (Record, error) {
	for {
		end, next, complete := s.findTerminator()
		if complete {
			raw := s.buf[s.start:end]
			s.start = next
			s.ordinal++
			return s.parseRecord(raw)
		}

		if s.eof {
			if s.start >= len(s.buf) {
				return Record{}, io.EOF
			}
			// Final record without a terminator.
			raw := s.buf[s.start:]
			s.start = len(s.buf)
			s.ordinal++
			return s.parseRecord(raw)
		}

		if err := s.fill(); err != nil {
			return Record{}, err
		}
	}
}

// findTerminator locates the end of the next record in the buffered data,
// honouring quote state. It returns the end of the record payload, the
// position scanning resumes at, and whether a terminator was found.
func (s *Scanner) findTerminator() (end, next int, complete bool) {
	inQuotes := false
	for i := s.start; i < len(s.buf); i++ {
		switch s.buf[i] {
		case '"':
			inQuotes = !inQuotes
		case '\n':
			if !inQuotes {
				end = i
				if i > s.start && s.buf[i-1] == '\r' {
					end = i - 1
				}
				return end, i + 1, true
			}
		}
	}
	return 0, 0, false
}

// fill compacts the carry buffer and reads more data, enforcing the record
// size cap.
func (s *Scanner) fill() error {
	if s.start > 0 {
		n := copy(s.buf, s.buf[s.start:])
		s.buf = s.buf[:n]
		s.start = 0
	}
	if len(s.buf) > s.maxRecord {
		return fmt.Errorf("record %d exceeds %d bytes: %w", s.ordinal+1, s.maxRecord, faults.ErrRecordTooLarge)
	}

	off := len(s.buf)
	if cap(s.buf)-off < readSize {
		grown := make([]byte, off, cap(s.buf)*2+readSize)
		copy(grown, s.buf)
		s.buf = grown
	}
	n, err := s.r.Read(s.buf[off : off+readSize])
	s.buf = s.buf[:off+n]
	if err != nil {
		if err == io.EOF {
			s.eof = true
			return nil
		}
		return fmt.Errorf("read csv stream: %w", err)
	}
	return nil
}

// parseRecord tokenises one framed record into fields.
func (s *Scanner) parseRecord(raw []byte) (Record, error) {
	s.fields = s.fields[:0]

	i := 0
	for {
		field, rest, err := parseField(raw[i:])
		if err != nil {
			return Record{}, &MalformedError{Ordinal: s.ordinal, Reason: err.Error()}
		}
		s.fields = append(s.fields, field)
		if rest < 0 {
			break
		}
		i += rest
	}

	if s.expect > 0 && len(s.fields) != s.expect {
		return Record{}, &MalformedError{
			Ordinal: s.ordinal,
			Reason:  fmt.Sprintf("field count %d, header has %d", len(s.fields), s.expect),
		}
	}

	return Record{Fields: s.fields, Ordinal: s.ordinal}, nil
}

// parseField tokenises a single field at the start of data. It returns the
// field and the offset of the next field, or -1 when the record is done.
func parseField(data []byte) (Field, int, error) {
	if len(data) == 0 {
		return Field{Bytes: nil}, -1, nil
	}

	if data[0] != '"' {
		// Unquoted: runs to the next comma.
		for i := 0; i < len(data); i++ {
			if data[i] == ',' {
				return Field{Bytes: data[:i]}, i + 1, nil
			}
		}
		return Field{Bytes: data}, -1, nil
	}

	// Quoted: scan for the closing quote, unescaping doubled quotes.
	var unescaped []byte // allocated only when an escape is seen
	segStart := 1
	for i := 1; i < len(data); i++ {
		if data[i] != '"' {
			continue
		}
		if i+1 < len(data) && data[i+1] == '"' {
			unescaped = append(unescaped, data[segStart:i+1]...)
			i++
			segStart = i + 1
			continue
		}

		// Closing quote.
		body := data[segStart:i]
		if unescaped != nil {
			unescaped = append(unescaped, body...)
			body = unescaped
		}
		switch {
		case i+1 >= len(data):
			return Field{Bytes: body, Quoted: true}, -1, nil
		case data[i+1] == ',':
			return Field{Bytes: body, Quoted: true}, i + 2, nil
		default:
			return Field{}, 0, fmt.Errorf("unexpected byte after closing quote")
		}
	}
	return Field{}, 0, fmt.Errorf("unterminated quoted field")
}
