package blobqueryx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
)

type FrameWriterOptions struct {
	// Codec is one of "null", "deflate" or "snappy".  Empty means "null".
	Codec string

	// Schema overrides FrameSchema, mainly to produce alternative branch orders.
	Schema string
}

// FrameWriter encodes frames in the quick query response format, one frame
// per block.
type FrameWriter struct {
	w          io.Writer
	codec      string
	schema     string
	syncMarker [syncMarkerLen]byte

	branchIdxs    map[FrameType]int64
	headerWritten bool
	buf           []byte
}

func NewFrameWriter(w io.Writer, opts *FrameWriterOptions) (*FrameWriter, error) {
	if opts == nil {
		opts = &FrameWriterOptions{}
	}

	codec := opts.Codec
	switch codec {
	case "":
		codec = codecNull
	case codecNull, codecDeflate, codecSnappy:
	default:
		return nil, errors.New("unsupported codec: " + codec)
	}

	schema := opts.Schema
	if schema == "" {
		schema = FrameSchema
	}

	branches, err := parseFrameSchema([]byte(schema))
	if err != nil {
		return nil, err
	}

	branchIdxs := make(map[FrameType]int64, len(branches))
	for branchIdx, frameType := range branches {
		branchIdxs[frameType] = int64(branchIdx)
	}

	return &FrameWriter{
		w:          w,
		codec:      codec,
		schema:     schema,
		syncMarker: uuid.New(),
		branchIdxs: branchIdxs,
	}, nil
}

func (fw *FrameWriter) writeHeader() error {
	buf := append(fw.buf[:0], containerMagic...)

	buf = appendLong(buf, 2)
	buf = appendBytes(buf, []byte("avro.schema"))
	buf = appendBytes(buf, []byte(fw.schema))
	buf = appendBytes(buf, []byte("avro.codec"))
	buf = appendBytes(buf, []byte(fw.codec))
	buf = appendLong(buf, 0)

	buf = append(buf, fw.syncMarker[:]...)
	fw.buf = buf

	_, err := fw.w.Write(buf)
	return err
}

func (fw *FrameWriter) encodeFrame(buf []byte, frame *Frame) ([]byte, error) {
	branchIdx, ok := fw.branchIdxs[frame.Type]
	if !ok {
		return nil, errors.New("schema has no branch for " + frame.Type.String() + " frames")
	}

	buf = appendLong(buf, branchIdx)

	switch frame.Type {
	case FrameTypeData:
		buf = appendBytes(buf, frame.Data)
	case FrameTypeProgress:
		buf = appendLong(buf, int64(frame.BytesScanned))
		buf = appendLong(buf, int64(frame.TotalBytes))
	case FrameTypeError:
		buf = appendBool(buf, frame.Error.IsFatal)
		buf = appendBytes(buf, []byte(frame.Error.Name))
		buf = appendBytes(buf, []byte(frame.Error.Description))
		buf = appendLong(buf, int64(frame.Error.Position))
	case FrameTypeEnd:
		buf = appendLong(buf, int64(frame.TotalBytes))
	default:
		return nil, errors.New("invalid frame type")
	}

	return buf, nil
}

func (fw *FrameWriter) compress(payload []byte) ([]byte, error) {
	switch fw.codec {
	case codecDeflate:
		var out bytes.Buffer
		zw, err := flate.NewWriter(&out, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		_, err = zw.Write(payload)
		if err != nil {
			return nil, err
		}
		err = zw.Close()
		if err != nil {
			return nil, err
		}
		return out.Bytes(), nil

	case codecSnappy:
		out := snappy.Encode(nil, payload)
		return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(payload)), nil
	}

	return payload, nil
}

func (fw *FrameWriter) WriteFrame(frame *Frame) error {
	if !fw.headerWritten {
		err := fw.writeHeader()
		if err != nil {
			return err
		}
		fw.headerWritten = true
	}

	payload, err := fw.encodeFrame(nil, frame)
	if err != nil {
		return err
	}

	payload, err = fw.compress(payload)
	if err != nil {
		return err
	}

	buf := appendLong(fw.buf[:0], 1)
	buf = appendLong(buf, int64(len(payload)))
	buf = append(buf, payload...)
	buf = append(buf, fw.syncMarker[:]...)
	fw.buf = buf

	_, err = fw.w.Write(buf)
	return err
}
