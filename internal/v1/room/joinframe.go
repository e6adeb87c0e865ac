package room

import (
	"fmt"
	"strings"
)

// composeJoinFrameLocked builds the literal join frame sent once per
// successful upstream open. Must be called with mu held.
func (r *Room) composeJoinFrameLocked() string {
	userAgent := fmt.Sprintf("YahooFantasyProxy/1.0 (%s)", r.platformUserID)
	return fmt.Sprintf("8|%s|%d|%s|", r.leagueID, r.primaryDraftPosition, percentEncodeURIComponent(userAgent))
}

// percentEncodeURIComponent percent-encodes s the way JavaScript's
// encodeURIComponent does: everything except unreserved characters
// (letters, digits, and -_.!~*'()) is escaped as %XX. Go's net/url
// escapers don't reproduce this exact unreserved set, and the upstream
// wire format is defined in terms of the browser-side encoder it mirrors.
func percentEncodeURIComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnescapedURIComponentByte(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isUnescapedURIComponentByte(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
