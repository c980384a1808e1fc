// Package reader consumes one shard's output directory, discovering files as
// the export job writes them and yielding a single ordered record stream.
package reader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// ErrIncompleteRecord reports that a file ended in the middle of a record.
// While the producing job is still running this means "not yet fully written,
// re-check later"; once the job is terminal it is a genuine data error.
var ErrIncompleteRecord = errors.New("incomplete trailing record")

// Decoder drains one shard file into records. Next returns io.EOF at a clean
// record boundary and ErrIncompleteRecord when the stream ends mid-record.
type Decoder interface {
	Next() ([]byte, error)
	// Consumed is the number of bytes of complete records (including their
	// delimiters) read so far. A re-opened file can be resumed by discarding
	// this many bytes.
	Consumed() int64
}

// DecoderFactory builds a Decoder over one file's byte stream.
type DecoderFactory func(r io.Reader) Decoder

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type lineDecoder struct {
	br       *bufio.Reader
	consumed int64
	validate bool
}

// JSONLines decodes newline-delimited JSON, validating each record.
func JSONLines(r io.Reader) Decoder {
	return &lineDecoder{br: bufio.NewReader(r), validate: true}
}

// RawLines decodes newline-delimited records without interpreting them.
func RawLines(r io.Reader) Decoder {
	return &lineDecoder{br: bufio.NewReader(r)}
}

func (d *lineDecoder) Next() ([]byte, error) {
	for {
		line, err := d.br.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(line) > 0 {
					return nil, ErrIncompleteRecord
				}
				return nil, io.EOF
			}
			return nil, err
		}

		d.consumed += int64(len(line))
		record := bytes.TrimRight(line, "\r\n")
		if len(record) == 0 {
			continue
		}
		if d.validate && !json.Valid(record) {
			return nil, fmt.Errorf("invalid JSON record %.80q", record)
		}
		return record, nil
	}
}

func (d *lineDecoder) Consumed() int64 {
	return d.consumed
}
