package blobqueryx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	pkgerrors "github.com/pkg/errors"
)

const (
	containerMagic = "Obj\x01"
	syncMarkerLen  = 16

	maxHeaderValueLen = 1024 * 1024
	maxBlockLen       = 256 * 1024 * 1024
	maxBlockObjects   = 1024 * 1024

	codecNull    = "null"
	codecDeflate = "deflate"
	codecSnappy  = "snappy"
)

// FrameReader decodes the frames of a quick query response body one at a
// time.  It reads the source only as far as the end of the block holding the
// frame being returned, so it is safe to use over a body that is still being
// streamed from the network.
type FrameReader struct {
	r io.Reader

	// small heap-allocated scratch buffer for varints and markers, reading
	// into a stack buffer through io.Reader would make it escape anyway.
	scratch []byte

	headerRead bool
	branches   []FrameType
	codec      string
	syncMarker [syncMarkerLen]byte

	block        blockDecoder
	blockObjects int64

	ended bool
	err   error
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:       r,
		scratch: make([]byte, syncMarkerLen),
	}
}

// Next returns the next frame of the stream.  It returns io.EOF once the end
// frame has been returned, a *DecodeError on malformed input, or the error of
// the underlying reader.  Errors are sticky.
func (fr *FrameReader) Next() (*Frame, error) {
	if fr.err != nil {
		return nil, fr.err
	}

	if fr.ended {
		return nil, io.EOF
	}

	frame, err := fr.next()
	if err != nil {
		fr.err = err
		fr.release()
		return nil, err
	}

	if frame.Type == FrameTypeEnd {
		fr.ended = true
		fr.release()
	}

	return frame, nil
}

// Release drops any buffered block data.  Subsequent calls to Next fail.
func (fr *FrameReader) Release() {
	if fr.err == nil && !fr.ended {
		fr.err = errors.New("frame reader released")
	}
	fr.release()
}

func (fr *FrameReader) release() {
	fr.block = blockDecoder{}
	fr.blockObjects = 0
}

func (fr *FrameReader) next() (*Frame, error) {
	if !fr.headerRead {
		err := fr.readHeader()
		if err != nil {
			return nil, err
		}
		fr.headerRead = true
	}

	for fr.blockObjects == 0 {
		if fr.block.remaining() > 0 {
			return nil, &DecodeError{Message: "trailing bytes after last object in block"}
		}

		err := fr.readBlock()
		if err != nil {
			return nil, err
		}
	}

	frame, err := fr.decodeFrame()
	if err != nil {
		return nil, err
	}
	fr.blockObjects--

	return frame, nil
}

func (fr *FrameReader) readFull(buf []byte) error {
	_, err := io.ReadFull(fr.r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &DecodeError{Message: "response stream truncated", Cause: io.ErrUnexpectedEOF}
		}
		return err
	}
	return nil
}

func (fr *FrameReader) readByte() (byte, error) {
	err := fr.readFull(fr.scratch[:1])
	if err != nil {
		return 0, err
	}
	return fr.scratch[0], nil
}

func (fr *FrameReader) readLong() (int64, error) {
	var value uint64
	var shift uint
	for i := 0; i < maxVarintLen; i++ {
		b, err := fr.readByte()
		if err != nil {
			return 0, err
		}

		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return zigzagDecode(value), nil
		}
		shift += 7
	}

	return 0, &DecodeError{Message: "varint overflows a long"}
}

func (fr *FrameReader) readLengthPrefixed(limit int64) ([]byte, error) {
	length, err := fr.readLong()
	if err != nil {
		return nil, err
	}

	if length < 0 || length > limit {
		return nil, &DecodeError{Message: "invalid header field length"}
	}

	buf := make([]byte, length)
	err = fr.readFull(buf)
	if err != nil {
		return nil, err
	}

	return buf, nil
}

func (fr *FrameReader) readHeader() error {
	magic := fr.scratch[:len(containerMagic)]
	_, err := io.ReadFull(fr.r, magic)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &DecodeError{Message: "response stream is empty or truncated", Cause: io.ErrUnexpectedEOF}
		}
		return pkgerrors.Wrap(err, "reading response header")
	}

	if string(magic) != containerMagic {
		return &DecodeError{Message: "invalid response magic"}
	}

	metadata := make(map[string][]byte)
	for {
		count, err := fr.readLong()
		if err != nil {
			return err
		}

		if count == 0 {
			break
		}

		if count < 0 {
			// a negative count is followed by the byte size of the block
			count = -count
			_, err := fr.readLong()
			if err != nil {
				return err
			}
		}

		for i := int64(0); i < count; i++ {
			key, err := fr.readLengthPrefixed(maxHeaderValueLen)
			if err != nil {
				return err
			}

			value, err := fr.readLengthPrefixed(maxHeaderValueLen)
			if err != nil {
				return err
			}

			metadata[string(key)] = value
		}
	}

	schema, ok := metadata["avro.schema"]
	if !ok {
		return &DecodeError{Message: "response header has no schema"}
	}

	branches, err := parseFrameSchema(schema)
	if err != nil {
		return err
	}

	codec := string(metadata["avro.codec"])
	switch codec {
	case "":
		codec = codecNull
	case codecNull, codecDeflate, codecSnappy:
	default:
		return &DecodeError{Message: "unsupported response codec: " + codec}
	}

	err = fr.readFull(fr.syncMarker[:])
	if err != nil {
		return err
	}

	fr.branches = branches
	fr.codec = codec
	return nil
}

func (fr *FrameReader) readBlock() error {
	// a clean EOF where a block would start means the service stopped
	// before sending the end frame
	_, err := io.ReadFull(fr.r, fr.scratch[:1])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &DecodeError{Message: "response stream ended before end frame", Cause: io.ErrUnexpectedEOF}
		}
		return err
	}

	objectCount, err := fr.continueLong(fr.scratch[0])
	if err != nil {
		return err
	}

	blockLen, err := fr.readLong()
	if err != nil {
		return err
	}

	if objectCount <= 0 || objectCount > maxBlockObjects {
		return &DecodeError{Message: "invalid block object count"}
	}

	if blockLen < 0 || blockLen > maxBlockLen {
		return &DecodeError{Message: "invalid block length"}
	}

	payload := make([]byte, blockLen)
	err = fr.readFull(payload)
	if err != nil {
		return err
	}

	marker := fr.scratch[:syncMarkerLen]
	err = fr.readFull(marker)
	if err != nil {
		return err
	}

	if !bytes.Equal(marker, fr.syncMarker[:]) {
		return &DecodeError{Message: "block sync marker mismatch"}
	}

	data, err := decompressBlock(fr.codec, payload, maxBlockLen)
	if err != nil {
		return err
	}

	fr.block = blockDecoder{buf: data}
	fr.blockObjects = objectCount
	return nil
}

// continueLong finishes decoding a varint whose first byte was already read.
func (fr *FrameReader) continueLong(first byte) (int64, error) {
	value := uint64(first & 0x7f)
	if first&0x80 == 0 {
		return zigzagDecode(value), nil
	}

	shift := uint(7)
	for i := 1; i < maxVarintLen; i++ {
		b, err := fr.readByte()
		if err != nil {
			return 0, err
		}

		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return zigzagDecode(value), nil
		}
		shift += 7
	}

	return 0, &DecodeError{Message: "varint overflows a long"}
}

func (fr *FrameReader) decodeFrame() (*Frame, error) {
	d := &fr.block

	branchIdx, err := d.readLong()
	if err != nil {
		return nil, err
	}

	if branchIdx < 0 || branchIdx >= int64(len(fr.branches)) {
		return nil, &DecodeError{Message: "unknown record type in response"}
	}

	switch fr.branches[branchIdx] {
	case FrameTypeData:
		data, err := d.readBytes()
		if err != nil {
			return nil, err
		}

		return &Frame{
			Type: FrameTypeData,
			Data: data,
		}, nil

	case FrameTypeProgress:
		bytesScanned, err := d.readCounter()
		if err != nil {
			return nil, err
		}

		totalBytes, err := d.readCounter()
		if err != nil {
			return nil, err
		}

		return &Frame{
			Type:         FrameTypeProgress,
			BytesScanned: bytesScanned,
			TotalBytes:   totalBytes,
		}, nil

	case FrameTypeError:
		fatal, err := d.readBool()
		if err != nil {
			return nil, err
		}

		name, err := d.readBytes()
		if err != nil {
			return nil, err
		}

		description, err := d.readBytes()
		if err != nil {
			return nil, err
		}

		position, err := d.readCounter()
		if err != nil {
			return nil, err
		}

		return &Frame{
			Type: FrameTypeError,
			Error: QueryError{
				IsFatal:     fatal,
				Name:        string(name),
				Description: string(description),
				Position:    position,
			},
		}, nil

	case FrameTypeEnd:
		totalBytes, err := d.readCounter()
		if err != nil {
			return nil, err
		}

		return &Frame{
			Type:       FrameTypeEnd,
			TotalBytes: totalBytes,
		}, nil
	}

	return nil, &DecodeError{Message: "unhandled record type in response"}
}

// decompressBlock expands a block payload, failing blocks which would expand
// past maxLen bytes.
func decompressBlock(codec string, payload []byte, maxLen int) ([]byte, error) {
	switch codec {
	case codecDeflate:
		fr := flate.NewReader(bytes.NewReader(payload))
		data, err := io.ReadAll(io.LimitReader(fr, int64(maxLen)+1))
		_ = fr.Close()
		if err != nil {
			return nil, &DecodeError{Message: "invalid deflate block", Cause: err}
		}
		if len(data) > maxLen {
			return nil, &DecodeError{Message: "deflate block expands past the maximum block length"}
		}
		return data, nil

	case codecSnappy:
		if len(payload) < 4 {
			return nil, &DecodeError{Message: "snappy block too short"}
		}

		compressed := payload[:len(payload)-4]
		expectedCrc := binary.BigEndian.Uint32(payload[len(payload)-4:])

		decodedLen, err := snappy.DecodedLen(compressed)
		if err != nil {
			return nil, &DecodeError{Message: "invalid snappy block", Cause: err}
		}
		if decodedLen > maxLen {
			return nil, &DecodeError{Message: "snappy block expands past the maximum block length"}
		}

		data, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, &DecodeError{Message: "invalid snappy block", Cause: err}
		}

		if crc32.ChecksumIEEE(data) != expectedCrc {
			return nil, &DecodeError{Message: "snappy block checksum mismatch"}
		}
		return data, nil
	}

	return payload, nil
}
