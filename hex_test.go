package serial

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeHex(t *testing.T) {
	require.Equal(t, "<", EncodeHex(nil))
	require.Equal(t, "<01020304", EncodeHex([]byte{1, 2, 3, 4}))
	require.Equal(t, "<AA00FF7E", EncodeHex([]byte{0xAA, 0x00, 0xFF, 0x7E}))
}

func TestHexRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	for _, b := range [][]byte{{}, {0x00}, {0x0A, 0x1B}, all} {
		enc := EncodeHex(b)
		digits := enc[1:]
		require.Zero(t, len(digits)%2)
		require.Equal(t, strings.ToUpper(digits), digits)

		dec, err := DecodeHex(enc)
		require.NoError(t, err)
		require.Equal(t, b, dec)
	}
}

func TestDecodeHex(t *testing.T) {
	got, err := DecodeHex(">0A1B")
	require.NoError(t, err)
	require.Equal(t, []byte{0x0A, 0x1B}, got)

	got, err = DecodeHex(">ff0a")
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0x0A}, got)

	got, err = DecodeHex(">")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDecodeHex_Invalid(t *testing.T) {
	for _, text := range []string{"", ">0", ">0A1", ">GG", ">0x"} {
		_, err := DecodeHex(text)
		require.ErrorIs(t, err, ErrArgument, "input %q", text)
	}
}
