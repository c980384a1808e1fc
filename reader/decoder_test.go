package reader

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONLinesDecodesRecords(t *testing.T) {
	d := JSONLines(strings.NewReader("{\"a\":1}\n{\"b\":2}\r\n\n{\"c\":3}\n"))

	record, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(record))

	record, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, `{"b":2}`, string(record))

	// Blank lines are skipped, not yielded as empty records.
	record, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, `{"c":3}`, string(record))

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestJSONLinesIncompleteTrailingRecord(t *testing.T) {
	d := JSONLines(strings.NewReader("{\"a\":1}\n{\"b\":"))

	record, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(record))

	_, err = d.Next()
	require.ErrorIs(t, err, ErrIncompleteRecord)

	// Consumed covers only the complete first line, so a resume re-reads the
	// partial tail from its start.
	require.Equal(t, int64(len("{\"a\":1}\n")), d.Consumed())
}

func TestJSONLinesRejectsInvalidJSON(t *testing.T) {
	d := JSONLines(strings.NewReader("not json\n"))
	_, err := d.Next()
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
}

func TestRawLinesAcceptsAnything(t *testing.T) {
	d := RawLines(strings.NewReader("not json\n{\"a\":1}\n"))

	record, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, "not json", string(record))

	record, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(record))

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoderEmptyStream(t *testing.T) {
	d := JSONLines(strings.NewReader(""))
	_, err := d.Next()
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, d.Consumed())
}
