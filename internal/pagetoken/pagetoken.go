// Package pagetoken encodes the opaque resumption token returned by paged
// reads. A token packs the scan direction and the row identifier the next
// page starts after; callers must treat the string as opaque.
package pagetoken

import (
	"fmt"
	"strconv"
)

// Empty is the token returned when no further pages exist.
const Empty = "-1"

// maxRowID is the largest row identifier a token can carry. One bit of the
// packed value holds the direction.
const maxRowID = int64(1)<<62 - 1

// Token is the decoded form of a page token.
type Token struct {
	// Ascending is the scan direction the token was issued for. A token
	// is only valid for reads in the same direction.
	Ascending bool

	// LastRowID is the row identifier of the last row already returned.
	LastRowID int64
}

// Encode packs the token into its opaque string form.
// Layout: bit 0 holds the direction, the remaining bits hold the row id.
func Encode(t Token) (string, error) {
	if t.LastRowID < 0 || t.LastRowID > maxRowID {
		return "", fmt.Errorf("page token row id out of range: %d", t.LastRowID)
	}
	packed := t.LastRowID << 1
	if t.Ascending {
		packed |= 1
	}
	return strconv.FormatInt(packed, 10), nil
}

// Decode unpacks an opaque token string. Decoding Empty or "" reports
// done=true with a zero token.
func Decode(s string) (t Token, done bool, err error) {
	if s == "" || s == Empty {
		return Token{}, true, nil
	}
	packed, err := strconv.ParseInt(s, 10, 64)
	if err != nil || packed < 0 {
		return Token{}, false, fmt.Errorf("invalid page token %q", s)
	}
	return Token{
		Ascending: packed&1 == 1,
		LastRowID: packed >> 1,
	}, false, nil
}
