// Package header parses the 32-byte MINIX a.out header that precedes an
// 8086 executable's text segment.
package header

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed length of the header in bytes.
const Size = 32

// Header holds every field of the MINIX a.out header. Only TextSize,
// DataSize, and Total are used to locate and size the segments; the
// other fields, including HdrLen, BssSize, and Entry, are kept but unused.
type Header struct {
	Magic   [2]byte
	Flags   uint8
	CPU     uint8
	HdrLen  uint8
	Unused  uint8
	Version uint16

	TextSize uint32
	DataSize uint32
	BssSize  uint32
	Entry    uint32
	Total    uint32
	Syms     uint32
}

// Parse reads a Header from the first 32 bytes of raw and validates the
// size invariants the machine depends on: total must cover at least
// text+data, and the whole image must fit in a 16-bit address space.
func Parse(raw []byte) (Header, error) {
	if len(raw) < Size {
		return Header{}, fmt.Errorf("header: file is %d bytes, need at least %d", len(raw), Size)
	}

	var h Header
	h.Magic = [2]byte{raw[0], raw[1]}
	h.Flags = raw[2]
	h.CPU = raw[3]
	h.HdrLen = raw[4]
	h.Unused = raw[5]
	h.Version = binary.LittleEndian.Uint16(raw[6:8])
	h.TextSize = binary.LittleEndian.Uint32(raw[8:12])
	h.DataSize = binary.LittleEndian.Uint32(raw[12:16])
	h.BssSize = binary.LittleEndian.Uint32(raw[16:20])
	h.Entry = binary.LittleEndian.Uint32(raw[20:24])
	h.Total = binary.LittleEndian.Uint32(raw[24:28])
	h.Syms = binary.LittleEndian.Uint32(raw[28:32])

	if err := h.validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

func (h Header) validate() error {
	if uint64(h.Total) < uint64(h.TextSize)+uint64(h.DataSize) {
		return fmt.Errorf("header: total %d smaller than text+data (%d+%d)", h.Total, h.TextSize, h.DataSize)
	}
	if h.Total > 65536 {
		return fmt.Errorf("header: total %d exceeds the 64K address space", h.Total)
	}
	return nil
}

// TextEnd is the byte offset, within the file, one past the text segment.
func (h Header) TextEnd() uint32 {
	return Size + h.TextSize
}

// DataEnd is the byte offset, within the file, one past the data segment.
func (h Header) DataEnd() uint32 {
	return h.TextEnd() + h.DataSize
}
