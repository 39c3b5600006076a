package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	SystemRoleRootAdmin    = "root_admin"
	SystemRoleChannelAdmin = "channel_admin"
	SystemRoleUser         = "user"

	MemberRoleMember = "member"
	MemberRoleAgent  = "agent"
)

type Account struct {
	Id          int
	Username    string
	PhoneNumber string
	SystemRole  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Channel struct {
	Id          int
	Identifier  string
	Title       string
	Description string
	OwnerId     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Message struct {
	Id           int64
	ChannelId    int
	SentByUserId *int
	Title        string
	Body         string
	BodyRaw      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageSnapshot is the copy of a message stored in the der_last_message and
// der_last_message_read membership columns.
type MessageSnapshot struct {
	Id           int64     `json:"id"`
	ChannelId    int       `json:"channel_id"`
	SentByUserId *int      `json:"sent_by_user_id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	BodyRaw      string    `json:"body_raw,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (m Message) Snapshot() *MessageSnapshot {
	return &MessageSnapshot{
		Id:           m.Id,
		ChannelId:    m.ChannelId,
		SentByUserId: m.SentByUserId,
		Title:        m.Title,
		Body:         m.Body,
		BodyRaw:      m.BodyRaw,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// Value stores a snapshot as JSONB. A nil snapshot is stored as SQL NULL.
func (s *MessageSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// snapshotColumn scans a nullable JSONB snapshot column.
type snapshotColumn struct {
	snap *MessageSnapshot
}

func (c *snapshotColumn) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		c.snap = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported snapshot column type")
	}

	var snap MessageSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return err
	}
	c.snap = &snap
	return nil
}

type Membership struct {
	UserId                     int
	ChannelId                  int
	MemberRole                 string
	ChannelUpdatedAt           *time.Time
	LastMessage                *MessageSnapshot
	LastMessageRead            *MessageSnapshot
	NumUnreadMessages          int
	MessageCollectionUpdatedAt *time.Time
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// SyncChannel is a membership projected into the channel-shaped record sent
// to clients. Channel fields are empty for rows that only carry read state.
type SyncChannel struct {
	ChannelId           int
	Identifier          string
	Title               string
	Description         string
	CreatedAt           *time.Time
	UpdatedAt           *time.Time
	MembershipCreatedAt *time.Time
	LastMessage         *MessageSnapshot
	LastMessageRead     *MessageSnapshot
	NumUnreadMessages   int
}

// MessageWindow selects one page of a channel's messages. AfterId and
// BeforeId are exclusive bounds; zero means unbounded.
type MessageWindow struct {
	ChannelId  int
	AfterId    int64
	BeforeId   int64
	Descending bool
	Limit      int
}

type CreateChannelParams struct {
	Identifier  string
	Title       string
	Description string
	OwnerId     int
	CreatedAt   time.Time
}

type UpdateChannelParams struct {
	Id          int
	Identifier  string
	Title       string
	Description string
	UpdatedAt   time.Time
}

type CreateMessageParams struct {
	ChannelId    int
	SentByUserId *int
	Title        string
	Body         string
	BodyRaw      string
	CreatedAt    time.Time
}

type UpdateMessageParams struct {
	Id        int64
	Title     string
	Body      string
	BodyRaw   string
	UpdatedAt time.Time
}

type ReadStateParams struct {
	UserId            int
	ChannelId         int
	LastMessageRead   *MessageSnapshot
	NumUnreadMessages int
	UpdatedAt         time.Time
}

// Page is a 1-based page of a listing.
type Page struct {
	Num  int
	Size int
}

func (p Page) offset() int {
	return (p.Num - 1) * p.Size
}

// ChannelFilter selects channels for the admin listing. A zero OwnerId lists
// every channel. SearchField is one of title, identifier or owner; other
// values are ignored.
type ChannelFilter struct {
	OwnerId     int
	SearchField string
	SearchValue string
	Page        Page
}

// MessageFilter searches one channel's messages by title or body.
type MessageFilter struct {
	ChannelId   int
	SearchField string
	SearchValue string
	Page        Page
}

// MemberFilter searches one channel's members by username or system role.
type MemberFilter struct {
	ChannelId   int
	SearchField string
	SearchValue string
	Page        Page
}

// ChannelListing carries the owner's id, username and system role.
type ChannelListing struct {
	Channel
	Owner Account
}

type Member struct {
	UserId     int
	Username   string
	SystemRole string
	MemberRole string
	JoinedAt   time.Time
}
