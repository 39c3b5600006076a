package delta

import (
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/go-notify/internal/apperr"
)

type SyncParams struct {
	// LastSync is nil for a first sync.
	LastSync *time.Time
	// MembershipCount is the number of channels the client held at LastSync.
	MembershipCount int
}

// ParseSyncParams reads the raw lastSyncTimestamp and membershipCount query
// values. An empty membershipCount means zero.
func ParseSyncParams(lastSyncTimestamp, membershipCount string) (SyncParams, error) {
	var params SyncParams

	if ts := strings.TrimSpace(lastSyncTimestamp); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return SyncParams{}, apperr.Validation("lastSyncTimestamp", "lastSyncTimestamp must be an RFC 3339 timestamp")
		}
		t = t.UTC()
		params.LastSync = &t
	}

	if c := strings.TrimSpace(membershipCount); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 0 {
			return SyncParams{}, apperr.Validation("membershipCount", "membershipCount must be a non-negative integer")
		}
		params.MembershipCount = n
	}

	return params, nil
}

type Direction int

const (
	After Direction = iota
	Before
)

// Cursor selects a window of a channel's messages. A zero Id means the start
// of the stream ("first") for After and the end ("last") for Before.
type Cursor struct {
	Direction Direction
	Id        int64
}

// ParseCursor accepts after=first|<id> or before=last|<id>. A valid after
// value takes precedence; an invalid one falls through to before.
func ParseCursor(after, before string) (Cursor, error) {
	if after == "first" {
		return Cursor{Direction: After}, nil
	}
	if id, ok := parseMessageId(after); ok {
		return Cursor{Direction: After, Id: id}, nil
	}
	if before == "last" {
		return Cursor{Direction: Before}, nil
	}
	if id, ok := parseMessageId(before); ok {
		return Cursor{Direction: Before, Id: id}, nil
	}
	return Cursor{}, apperr.Validation("after", "invalid query parameters")
}

func parseMessageId(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
