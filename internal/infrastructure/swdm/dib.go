package swdm

import (
	"encoding/binary"
	"fmt"
)

const bmpFileHeaderSize = 14

// bmpFromDIB wraps a raw device-independent bitmap payload into a standard
// bitmap container by synthesizing the missing 14-byte file header. The
// pixel-data offset is computed from the embedded header size and
// color-table size.
func bmpFromDIB(dib []byte) ([]byte, error) {
	if len(dib) < 12 {
		return nil, fmt.Errorf("bitmap payload too short: %d bytes", len(dib))
	}
	headerSize := binary.LittleEndian.Uint32(dib[0:4])
	if int64(headerSize) > int64(len(dib)) {
		return nil, fmt.Errorf("bitmap header size %d exceeds payload %d", headerSize, len(dib))
	}

	var tableBytes uint32
	switch headerSize {
	case 12:
		// Legacy core header: 3-byte palette entries.
		bitCount := binary.LittleEndian.Uint16(dib[10:12])
		if bitCount > 0 && bitCount <= 8 {
			tableBytes = (1 << bitCount) * 3
		}
	case 40, 52, 56, 108, 124:
		bitCount := binary.LittleEndian.Uint16(dib[14:16])
		compression := binary.LittleEndian.Uint32(dib[16:20])
		clrUsed := binary.LittleEndian.Uint32(dib[32:36])
		switch {
		case clrUsed > 0:
			tableBytes = clrUsed * 4
		case bitCount > 0 && bitCount <= 8:
			tableBytes = (1 << bitCount) * 4
		}
		// A 40-byte header with bitfield compression carries the masks
		// after the header, before the pixels.
		if headerSize == 40 {
			switch compression {
			case 3:
				tableBytes += 12
			case 6:
				tableBytes += 16
			}
		}
	default:
		return nil, fmt.Errorf("unsupported bitmap header size %d", headerSize)
	}

	offset := bmpFileHeaderSize + headerSize + tableBytes
	if int64(offset) > int64(bmpFileHeaderSize+len(dib)) {
		return nil, fmt.Errorf("bitmap color table exceeds payload")
	}

	out := make([]byte, bmpFileHeaderSize+len(dib))
	out[0], out[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(out[2:6], uint32(bmpFileHeaderSize+len(dib)))
	binary.LittleEndian.PutUint32(out[10:14], offset)
	copy(out[bmpFileHeaderSize:], dib)
	return out, nil
}
