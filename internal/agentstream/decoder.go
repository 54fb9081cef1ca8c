package agentstream

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/aegis-ops/console/internal/model"
)

// maxRecordSize bounds one record; agents truncate observations well below it.
const maxRecordSize = 8 * 1024 * 1024

var errRecordTooLong = errors.New("record exceeds size limit")

var (
	ssePrefixData   = []byte("data:")
	sseSkipPrefixes = [][]byte{[]byte("event:"), []byte("id:"), []byte("retry:")}
)

// Decoder frames a response body into stream records. Records are newline
// delimited JSON; "data:" framed server-sent events are accepted as well.
type Decoder struct {
	r   *bufio.Reader
	buf []byte
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// readLine returns the next line without its terminator. A line longer than
// maxRecordSize is consumed through its newline and reported as
// errRecordTooLong so the following records stay readable.
func (d *Decoder) readLine() ([]byte, error) {
	d.buf = d.buf[:0]
	tooLong := false
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !tooLong {
			if len(d.buf)+len(chunk) > maxRecordSize+1 {
				tooLong = true
				d.buf = d.buf[:0]
			} else {
				d.buf = append(d.buf, chunk...)
			}
		}
		switch {
		case err == nil:
			if tooLong {
				return nil, errRecordTooLong
			}
			return d.buf, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLong {
				return nil, errRecordTooLong
			}
			if len(d.buf) == 0 {
				return nil, io.EOF
			}
			return d.buf, nil
		default:
			return nil, err
		}
	}
}

// Next returns the next record. A malformed or oversized record yields a
// *DecodeError and the caller may keep reading. io.EOF marks the end of the
// body; an unterminated trailing fragment that does not decode is reported as
// a *DecodeError like any other malformed record.
func (d *Decoder) Next() (model.Event, error) {
	for {
		line, err := d.readLine()
		if errors.Is(err, errRecordTooLong) {
			return nil, &DecodeError{Err: err}
		}
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == ':' || skipSSEField(line) {
			continue
		}
		if bytes.HasPrefix(line, ssePrefixData) {
			line = bytes.TrimSpace(line[len(ssePrefixData):])
			if len(line) == 0 {
				continue
			}
		}

		ev, err := model.DecodeEvent(line)
		if err != nil {
			return nil, &DecodeError{Record: append([]byte(nil), line...), Err: err}
		}
		return ev, nil
	}
}

func skipSSEField(line []byte) bool {
	for _, p := range sseSkipPrefixes {
		if bytes.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
