package ebmlsplit

import "math/bits"

// ReadSize decodes the EBML variable-length integer at buf[pos]. The width of
// the field is reported even when the value is indeterminate so a scanner can
// step over it.
func ReadSize(buf []byte, pos, maxWidth int) (uint64, int, error) {
	if pos < 0 || pos >= len(buf) {
		return 0, 0, ErrIndeterminateSize
	}
	first := buf[pos]
	width := bits.LeadingZeros8(first) + 1
	if width > maxWidth || pos+width > len(buf) {
		return 0, width, ErrIndeterminateSize
	}

	v := uint64(first & (0xFF >> uint(width)))
	for _, b := range buf[pos+1 : pos+width] {
		v = v<<8 | uint64(b)
	}
	return v, width, nil
}
