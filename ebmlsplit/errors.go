package ebmlsplit

import "errors"

var (
	// ErrIndeterminateSize is returned by ReadSize when the field is truncated
	// or wider than allowed. It is never a zero value in disguise.
	ErrIndeterminateSize = errors.New("indeterminate ebml size")
	ErrBlockNotFound     = errors.New("no simple block found")

	ErrNoAudioStream        = errors.New("no audio stream found in container")
	ErrMultipleAudioStreams = errors.New("container has more than one audio stream")
	ErrNoKeyframeFound      = errors.New("no keyframe before split point")
	ErrTrailerStripFailed   = errors.New("last muxed block is incomplete")

	ErrDemux = errors.New("demux failed")
	ErrMux   = errors.New("mux failed")
)
