package ebmlsplit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSize(t *testing.T) {
	tests := []struct {
		name      string
		buf       []byte
		pos       int
		maxWidth  int
		wantValue uint64
		wantWidth int
		wantErr   bool
	}{
		{"one byte", []byte{0x82}, 0, 1, 2, 1, false},
		{"one byte zero", []byte{0x80}, 0, 2, 0, 1, false},
		{"one byte max", []byte{0xFF}, 0, 2, 0x7F, 1, false},
		{"two bytes", []byte{0x41, 0x02}, 0, 2, 0x0102, 2, false},
		{"two bytes all marker bits masked", []byte{0x7F, 0xFF}, 0, 2, 0x3FFF, 2, false},
		{"offset", []byte{0x00, 0x00, 0x40, 0x36}, 2, 2, 0x36, 2, false},
		{"four bytes", []byte{0x10, 0x00, 0x01, 0x00}, 0, 4, 0x100, 4, false},
		{"wider than allowed", []byte{0x41, 0x02}, 0, 1, 0, 2, true},
		{"truncated", []byte{0x41}, 0, 2, 0, 2, true},
		{"no marker bit", []byte{0x00, 0x00}, 0, 8, 0, 9, true},
		{"position past end", []byte{0x82}, 1, 2, 0, 0, true},
		{"negative position", []byte{0x82}, -1, 2, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, w, err := ReadSize(tt.buf, tt.pos, tt.maxWidth)
			assert.Equal(t, tt.wantWidth, w)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrIndeterminateSize)
				assert.Zero(t, v)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, v)
		})
	}
}

func TestReadSize_ZeroIsNotIndeterminate(t *testing.T) {
	v, w, err := ReadSize([]byte{0x40, 0x00}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
	assert.Equal(t, 2, w)
}
