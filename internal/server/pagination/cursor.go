// Package pagination encodes keyset cursors for lists ordered by time DESC, id DESC.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const cursorSeparator = ","
const timeFormat = time.RFC3339Nano

// EncodeCursor creates an opaque cursor string from timestamp and ID.
func EncodeCursor(ts time.Time, id int64) string {
	key := fmt.Sprintf("%s%s%d", ts.UTC().Format(timeFormat), cursorSeparator, id)
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor parses the opaque cursor string back into timestamp and ID.
func DecodeCursor(encodedCursor string) (time.Time, int64, error) {
	decodedBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encodedCursor, "="))
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	ts, rawID, ok := strings.Cut(string(decodedBytes), cursorSeparator)
	if !ok {
		return time.Time{}, 0, fmt.Errorf("invalid cursor format")
	}

	t, err := time.Parse(timeFormat, ts)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid timestamp in cursor: %w", err)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return time.Time{}, 0, fmt.Errorf("invalid id in cursor")
	}

	return t.UTC(), id, nil
}

// Page trims items fetched with limit+1 to limit and returns the cursor of the
// last kept item when more remain.
func Page[T any](items []T, limit int, key func(T) (time.Time, int64)) ([]T, *string) {
	if len(items) <= limit {
		return items, nil
	}
	items = items[:limit]
	if limit == 0 {
		return items, nil
	}
	ts, id := key(items[limit-1])
	next := EncodeCursor(ts, id)
	return items, &next
}
