package avformat

// Timestamp is an optional container timestamp.
type Timestamp struct {
	Value int64
	Valid bool
}

func At(v int64) Timestamp {
	return Timestamp{Value: v, Valid: true}
}

// Sub rebases t on base. Missing values stay missing.
func (t Timestamp) Sub(base Timestamp) Timestamp {
	if !t.Valid || !base.Valid {
		return t
	}
	return Timestamp{Value: t.Value - base.Value, Valid: true}
}

type Packet struct {
	Stream   Stream
	Data     []byte
	Size     int // bytes consumed from the container payload
	Keyframe bool
	DTS      Timestamp
	PTS      Timestamp
}
