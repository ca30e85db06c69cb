package messagestore

import "strings"

// cursorSep separates the two halves of a cursor token. It cannot appear
// in a sort key's type tag ("b:", "s:", "n:") or a messageCid (base32), so
// splitting is unambiguous.
const cursorSep = "\x1f"

// makeCursor encodes the (sortKey, messageCid) tie-break pair a page
// boundary stops at.
func makeCursor(sortKeyVal, messageCID string) string {
	return sortKeyVal + cursorSep + messageCID
}

// splitCursor decodes a cursor token. ok is false for any malformed token,
// which callers must treat as an invalid cursor (spec §4.3 step 5: yields
// the empty set).
func splitCursor(cursor string) (sortKeyVal, messageCID string, ok bool) {
	idx := strings.LastIndex(cursor, cursorSep)
	if idx < 0 {
		return "", "", false
	}
	return cursor[:idx], cursor[idx+1:], true
}
