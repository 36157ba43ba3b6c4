// Package paging provides the composite cursor codec and result shape for
// cursor-based listing endpoints.
//
// A cursor encodes the (created_at, id) sort key of the last item of a page.
// The next page consists of rows strictly after that position in descending
// (created_at, id) order, so the boundary item is never returned twice and
// the scan is stable under concurrent inserts.
package paging

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxLimit is the hard cap on page size regardless of what the caller asks for.
const MaxLimit = 10

// Cursor is the decoded position marker: the sort key of the last-seen row.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// Encode serializes the cursor as base64("RFC3339Nano|id"). The timestamp is
// normalized to UTC so the encoding is independent of server locale.
func (c Cursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + strconv.FormatUint(uint64(c.ID), 10)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// Decode parses an encoded cursor. Malformed input is reported as an error so
// callers can reject it as an invalid argument rather than silently scanning
// from the top.
func Decode(encoded string) (Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Cursor{}, fmt.Errorf("cursor is not valid base64: %w", err)
	}
	parts := strings.SplitN(string(b), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("cursor %q has no id component", string(b))
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, fmt.Errorf("cursor timestamp: %w", err)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("cursor id: %w", err)
	}
	return Cursor{CreatedAt: t, ID: uint(id)}, nil
}

// Page is the standard cursor-paginated response shape.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
	TotalCount int64  `json:"total_count"`
}

// ClampLimit bounds a requested page size to [1, MaxLimit]. A non-positive
// limit is the caller's error and is reported as such.
func ClampLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if limit > MaxLimit {
		return MaxLimit, nil
	}
	return limit, nil
}
