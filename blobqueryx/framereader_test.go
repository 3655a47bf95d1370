package blobqueryx

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFrames = []*Frame{
	{Type: FrameTypeData, Data: []byte("100,200\n")},
	{Type: FrameTypeError, Error: QueryError{Name: "InvalidTypeConversion", Description: "Invalid type conversion.", Position: 8}},
	{Type: FrameTypeProgress, BytesScanned: 16, TotalBytes: 32},
	{Type: FrameTypeData, Data: []byte("300,400\n")},
	{Type: FrameTypeProgress, BytesScanned: 32, TotalBytes: 32},
	{Type: FrameTypeEnd, TotalBytes: 32},
}

func encodeTestFrames(t *testing.T, opts *FrameWriterOptions, frames []*Frame) []byte {
	var buf bytes.Buffer
	fw, err := NewFrameWriter(&buf, opts)
	require.NoError(t, err)

	for _, frame := range frames {
		require.NoError(t, fw.WriteFrame(frame))
	}

	return buf.Bytes()
}

func readAllFrames(fr *FrameReader) ([]*Frame, error) {
	var frames []*Frame
	for {
		frame, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}

func TestFrameReaderCodecs(t *testing.T) {
	for _, codec := range []string{"", codecNull, codecDeflate, codecSnappy} {
		t.Run("codec-"+codec, func(t *testing.T) {
			stream := encodeTestFrames(t, &FrameWriterOptions{Codec: codec}, testFrames)

			frames, err := readAllFrames(NewFrameReader(bytes.NewReader(stream)))
			require.NoError(t, err)
			assert.Equal(t, testFrames, frames)
		})
	}
}

func TestFrameReaderBranchOrder(t *testing.T) {
	// end, progress, error, resultData
	schema := `[` +
		`{"type":"record","name":"end","namespace":"com.microsoft.azure.storage.queryBlobContents",` +
		`"fields":[{"name":"totalBytes","type":"long"}]},` +
		`{"type":"record","name":"com.microsoft.azure.storage.queryBlobContents.progress",` +
		`"fields":[{"name":"bytesScanned","type":"long"},{"name":"totalBytes","type":"long"}]},` +
		`{"type":"record","name":"com.microsoft.azure.storage.queryBlobContents.error",` +
		`"fields":[]},` +
		`{"type":"record","name":"com.microsoft.azure.storage.queryBlobContents.resultData",` +
		`"fields":[{"name":"data","type":"bytes"}]}` +
		`]`

	stream := encodeTestFrames(t, &FrameWriterOptions{Schema: schema}, testFrames)

	frames, err := readAllFrames(NewFrameReader(bytes.NewReader(stream)))
	require.NoError(t, err)
	assert.Equal(t, testFrames, frames)
}

func TestFrameReaderEOFAfterEnd(t *testing.T) {
	stream := encodeTestFrames(t, nil, testFrames)
	fr := NewFrameReader(bytes.NewReader(stream))

	_, err := readAllFrames(fr)
	require.NoError(t, err)

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReaderMissingEnd(t *testing.T) {
	stream := encodeTestFrames(t, nil, testFrames[:3])

	frames, err := readAllFrames(NewFrameReader(bytes.NewReader(stream)))
	assert.Len(t, frames, 3)
	assert.ErrorIs(t, err, ErrDecodeFailure)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrameReaderTruncated(t *testing.T) {
	stream := encodeTestFrames(t, nil, testFrames)

	// every proper prefix of a well formed stream is a decode failure
	for cut := 0; cut < len(stream); cut++ {
		_, err := readAllFrames(NewFrameReader(bytes.NewReader(stream[:cut])))
		require.ErrorIs(t, err, ErrDecodeFailure, "cut at %d", cut)
	}
}

func TestFrameReaderBadMagic(t *testing.T) {
	stream := encodeTestFrames(t, nil, testFrames)
	stream[0] = 'X'

	_, err := NewFrameReader(bytes.NewReader(stream)).Next()
	assert.ErrorIs(t, err, ErrDecodeFailure)
}

func TestFrameReaderBadSyncMarker(t *testing.T) {
	stream := encodeTestFrames(t, nil, testFrames[:1])
	stream[len(stream)-1] ^= 0xff

	_, err := NewFrameReader(bytes.NewReader(stream)).Next()
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "block sync marker mismatch", decodeErr.Message)
}

func TestFrameReaderUnknownBranch(t *testing.T) {
	var buf bytes.Buffer
	fw, err := NewFrameWriter(&buf, nil)
	require.NoError(t, err)
	require.NoError(t, fw.writeHeader())

	payload := appendLong(nil, 7)
	block := appendLong(nil, 1)
	block = appendLong(block, int64(len(payload)))
	block = append(block, payload...)
	block = append(block, fw.syncMarker[:]...)
	buf.Write(block)

	_, err = NewFrameReader(&buf).Next()
	assert.ErrorIs(t, err, ErrDecodeFailure)
}

func TestFrameReaderUnsupportedSchema(t *testing.T) {
	_, err := NewFrameWriter(io.Discard, &FrameWriterOptions{
		Schema: `[{"type":"record","name":"org.example.other","fields":[]}]`,
	})
	assert.ErrorIs(t, err, ErrDecodeFailure)

	_, err = NewFrameWriter(io.Discard, &FrameWriterOptions{Codec: "zstd"})
	assert.Error(t, err)
}

type failingReader struct {
	r   io.Reader
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, f.err
	}
	return n, err
}

func TestFrameReaderPassesThroughSourceErrors(t *testing.T) {
	errReset := errors.New("connection reset")
	stream := encodeTestFrames(t, nil, testFrames[:2])

	fr := NewFrameReader(&failingReader{r: bytes.NewReader(stream), err: errReset})
	frames, err := readAllFrames(fr)
	assert.Len(t, frames, 2)
	assert.ErrorIs(t, err, errReset)
	assert.NotErrorIs(t, err, ErrDecodeFailure)

	// errors are sticky
	_, err = fr.Next()
	assert.ErrorIs(t, err, errReset)
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestFrameReaderDoesNotReadAhead(t *testing.T) {
	var buf bytes.Buffer
	fw, err := NewFrameWriter(&buf, nil)
	require.NoError(t, err)
	require.NoError(t, fw.WriteFrame(testFrames[0]))
	firstBlockEnd := buf.Len()
	require.NoError(t, fw.WriteFrame(testFrames[5]))

	src := &countingReader{r: bytes.NewReader(buf.Bytes())}
	fr := NewFrameReader(src)

	_, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, firstBlockEnd, src.n)
}

func TestDecompressBlockLimitsExpandedSize(t *testing.T) {
	raw := make([]byte, 64*1024)

	for _, codec := range []string{codecDeflate, codecSnappy} {
		t.Run(codec, func(t *testing.T) {
			fw := &FrameWriter{codec: codec}
			payload, err := fw.compress(raw)
			require.NoError(t, err)
			require.Less(t, len(payload), 1024)

			data, err := decompressBlock(codec, payload, len(raw))
			require.NoError(t, err)
			assert.Len(t, data, len(raw))

			_, err = decompressBlock(codec, payload, len(raw)-1)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.ErrorIs(t, err, ErrDecodeFailure)
		})
	}
}
