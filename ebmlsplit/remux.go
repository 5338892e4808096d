package ebmlsplit

import (
	"bytes"
	"fmt"

	"github.com/iammeizu/voicesplit/avformat"
)

// Remux writes pkts into a new container of format f whose single stream is
// described by tmpl. With rebase set, timestamps are shifted so that the first
// packet starts at zero.
func Remux(f avformat.Format, tmpl avformat.Stream, pkts []avformat.Packet, rebase bool) ([]byte, error) {
	var buf bytes.Buffer
	m, err := f.Create(&buf)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrMux, f.Name(), err)
	}
	if err := m.AddStream(tmpl); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("%w: add stream: %v", ErrMux, err)
	}

	var dts0, pts0 avformat.Timestamp
	if len(pkts) > 0 {
		dts0, pts0 = pkts[0].DTS, pkts[0].PTS
	}
	for i, pkt := range pkts {
		if rebase {
			pkt.DTS = pkt.DTS.Sub(dts0)
			pkt.PTS = pkt.PTS.Sub(pts0)
		}
		if err := m.WritePacket(pkt); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("%w: packet %d: %v", ErrMux, i, err)
		}
	}

	if err := m.Close(); err != nil {
		return nil, fmt.Errorf("%w: close: %v", ErrMux, err)
	}
	return buf.Bytes(), nil
}
