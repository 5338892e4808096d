package ebmlsplit

import "bytes"

const (
	simpleBlockID = 0xA3

	maxSizeWidth  = 2
	maxTrack      = 5
	keyframeFlag  = 0x80
	plainFlag     = 0x00
	timecodeWidth = 2
)

// SimpleBlock is a located SimpleBlock element. Size is the decoded element
// data size; TotalSize adds the ID byte and the size field.
type SimpleBlock struct {
	Position  int
	Size      int
	TotalSize int
}

// End is the offset just past the element.
func (b SimpleBlock) End() int {
	return b.Position + b.TotalSize
}

// FindLastSimpleBlock finds the last SimpleBlock element in buf.
func FindLastSimpleBlock(buf []byte) (SimpleBlock, error) {
	return FindLastSimpleBlockBefore(buf, len(buf))
}

// FindLastSimpleBlockBefore scans buf[:searchEnd] backwards for a SimpleBlock.
// searchEnd is clamped to [0, len(buf)].
//
// This is not a parse of the element tree. A 0xA3 byte is accepted when it is
// followed by a size of at most two bytes, a track number below 5 and, after
// the 16 bit timecode, a flag byte of exactly 0x80 or 0x00. Payload bytes that
// happen to look like that header are reported as a block.
func FindLastSimpleBlockBefore(buf []byte, searchEnd int) (SimpleBlock, error) {
	switch {
	case searchEnd < 0:
		searchEnd = 0
	case searchEnd > len(buf):
		searchEnd = len(buf)
	}
	data := buf[:searchEnd]

	for cursor := len(data) - 1; cursor >= 0; {
		pos := bytes.LastIndexByte(data[:cursor+1], simpleBlockID)
		if pos < 0 {
			break
		}
		if b, ok := validateSimpleBlock(data, pos); ok {
			return b, nil
		}
		cursor = pos - 1
	}
	return SimpleBlock{}, ErrBlockNotFound
}

func validateSimpleBlock(data []byte, pos int) (SimpleBlock, bool) {
	size, sizeWidth, err := ReadSize(data, pos+1, maxSizeWidth)
	if err != nil {
		return SimpleBlock{}, false
	}
	track, trackWidth, err := ReadSize(data, pos+1+sizeWidth, maxSizeWidth)
	if err != nil || track >= maxTrack {
		return SimpleBlock{}, false
	}
	flagPos := pos + 1 + sizeWidth + trackWidth + timecodeWidth
	if flagPos >= len(data) {
		return SimpleBlock{}, false
	}
	if flag := data[flagPos]; flag != keyframeFlag && flag != plainFlag {
		return SimpleBlock{}, false
	}
	return SimpleBlock{
		Position:  pos,
		Size:      int(size),
		TotalSize: int(size) + 1 + sizeWidth,
	}, true
}
