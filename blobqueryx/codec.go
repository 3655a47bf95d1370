package blobqueryx

import "encoding/binary"

const maxVarintLen = binary.MaxVarintLen64

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func appendLong(buf []byte, v int64) []byte {
	return binary.AppendUvarint(buf, zigzagEncode(v))
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendLong(buf, int64(len(b)))
	return append(buf, b...)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// blockDecoder reads primitive values out of a decompressed block.
type blockDecoder struct {
	buf []byte
	pos int
}

func (d *blockDecoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *blockDecoder) readLong() (int64, error) {
	value, n := binary.Uvarint(d.buf[d.pos:])
	if n == 0 {
		return 0, &DecodeError{Message: "record truncated"}
	} else if n < 0 {
		return 0, &DecodeError{Message: "varint overflows a long"}
	}

	d.pos += n
	return zigzagDecode(value), nil
}

// readCounter reads a long which must not be negative.
func (d *blockDecoder) readCounter() (uint64, error) {
	v, err := d.readLong()
	if err != nil {
		return 0, err
	}

	if v < 0 {
		return 0, &DecodeError{Message: "negative counter in record"}
	}

	return uint64(v), nil
}

func (d *blockDecoder) readBool() (bool, error) {
	if d.remaining() < 1 {
		return false, &DecodeError{Message: "record truncated"}
	}

	b := d.buf[d.pos]
	d.pos++

	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}

	return false, &DecodeError{Message: "invalid boolean in record"}
}

func (d *blockDecoder) readBytes() ([]byte, error) {
	length, err := d.readLong()
	if err != nil {
		return nil, err
	}

	if length < 0 || length > int64(d.remaining()) {
		return nil, &DecodeError{Message: "record field length exceeds block"}
	}

	// sliced rather than copied, blocks are never reused once decoded
	b := d.buf[d.pos : d.pos+int(length) : d.pos+int(length)]
	d.pos += int(length)
	return b, nil
}
