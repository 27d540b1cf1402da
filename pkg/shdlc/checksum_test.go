package shdlc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	testCases := []struct {
		name   string
		data   []byte
		expect byte
	}{
		{"empty", nil, 0xff},
		{"datasheet example", []byte{0x00, 0x01, 0x02}, 0xfc},
		{"start measurement request", []byte{0x00, 0x00, 0x02, 0x01, 0x03}, 0xf9},
		{"sum wraps mod 256", []byte{0xff, 0xff, 0x03}, 0xfe},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, Checksum(tc.data))
			require.True(t, VerifyChecksum(tc.data, tc.expect))
			require.False(t, VerifyChecksum(tc.data, tc.expect+1))
		})
	}
}
