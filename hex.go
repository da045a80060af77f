package serial

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexMarker prefixes every encoded response line.
const HexMarker = '<'

// EncodeHex renders b as the marker followed by two upper-case hex digits
// per byte. An empty b yields the marker alone.
func EncodeHex(b []byte) string {
	var sb strings.Builder
	sb.Grow(1 + 2*len(b))
	sb.WriteByte(HexMarker)
	sb.WriteString(strings.ToUpper(hex.EncodeToString(b)))
	return sb.String()
}

// DecodeHex parses a marker character followed by hex pairs. The marker
// itself is not inspected. Digits are accepted in either case.
func DecodeHex(text string) ([]byte, error) {
	if len(text)%2 != 1 {
		return nil, fmt.Errorf("%w: odd length expected for %d:%q", ErrArgument, len(text), text)
	}
	b, err := hex.DecodeString(text[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: bad hex payload %q: %v", ErrArgument, text, err)
	}
	return b, nil
}
