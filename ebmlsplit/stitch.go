package ebmlsplit

import "fmt"

// StripTrailer cuts everything after the last SimpleBlock of a freshly muxed
// container, dropping indexes such as Cues.
func StripTrailer(muxed []byte) ([]byte, error) {
	last, err := FindLastSimpleBlock(muxed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrailerStripFailed, err)
	}
	if last.End() > len(muxed) {
		return nil, fmt.Errorf("%w: block at %d ends at %d past %d bytes",
			ErrTrailerStripFailed, last.Position, last.End(), len(muxed))
	}
	return muxed[:last.End()], nil
}

// Stitch strips the trailer of muxed and appends the untouched raw tail.
func Stitch(muxed, tail []byte) ([]byte, error) {
	head, err := StripTrailer(muxed)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...), nil
}
