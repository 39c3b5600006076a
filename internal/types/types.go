package types

import (
	"time"
)

type HintReason string

const (
	ReasonMessages       HintReason = "messages"
	ReasonChannel        HintReason = "channel"
	ReasonMembership     HintReason = "membership"
	ReasonChannelDeleted HintReason = "channel_deleted"
)

type User struct {
	Id          int    `json:"id"`
	Username    string `json:"username"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	SystemRole  string `json:"systemRole"`
}

type Channel struct {
	Id          int       `json:"id"`
	Identifier  string    `json:"identifier"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	OwnerId     int       `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Message struct {
	Id           int64     `json:"id"`
	ChannelId    int       `json:"channelId"`
	SentByUserId *int      `json:"sentByUserId"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	BodyRaw      string    `json:"der_bodyRaw,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SyncChannel is a membership as seen by a client. Records produced by the
// message collection query only carry the id and the der_ fields.
type SyncChannel struct {
	Id                  int        `json:"id"`
	Identifier          string     `json:"identifier,omitempty"`
	Title               string     `json:"title,omitempty"`
	Description         string     `json:"description,omitempty"`
	CreatedAt           *time.Time `json:"createdAt,omitempty"`
	UpdatedAt           *time.Time `json:"updatedAt,omitempty"`
	MembershipCreatedAt *time.Time `json:"membershipCreatedAt,omitempty"`
	LastMessage         *Message   `json:"der_lastMessage"`
	NumUnreadMessages   int        `json:"der_numUnreadMessages"`
	LastMessageRead     *Message   `json:"der_lastMessageRead"`
}

type ChannelDelta struct {
	Added                  []SyncChannel `json:"added"`
	Edited                 []SyncChannel `json:"edited"`
	ExistingIds            []int         `json:"existingIds"`
	IsAnyMembershipDeleted bool          `json:"isAnyMembershipDeleted"`
}

type MessageDelta struct {
	Added   []Message `json:"added"`
	Edited  []Message `json:"edited"`
	Removed []int64   `json:"removed"`
}

type SyncResponse struct {
	LastSyncTimestamp      time.Time    `json:"lastSyncTimestamp"`
	ShouldResetCurrentData bool         `json:"shouldResetCurrentData"`
	Channels               ChannelDelta `json:"channels"`
	Messages               MessageDelta `json:"messages"`
}

type MessagePage struct {
	Messages []Message `json:"messages"`
	Limit    int       `json:"limit"`
}

type PageMeta struct {
	PageNum    int `json:"pageNum"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}

// Listing is one page of an admin listing.
type Listing[T any] struct {
	Entities []T      `json:"entities"`
	Meta     PageMeta `json:"meta"`
}

type ChannelWithOwner struct {
	Channel
	Owner *User `json:"owner"`
}

type Member struct {
	Id         int       `json:"id"`
	Username   string    `json:"username"`
	SystemRole string    `json:"systemRole"`
	MemberRole string    `json:"memberRole"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// MessageDetail is a message with its channel and sender filled in. Messages
// posted by the channel owner report the owner as sender.
type MessageDetail struct {
	Message
	Channel    Channel `json:"channel"`
	SentByUser *User   `json:"sentByUser"`
}

type StatusMessage struct {
	Message string `json:"message"`
}

type SyncHint struct {
	ChannelId int        `json:"channel_id"`
	Reason    HintReason `json:"reason"`
	// UserIds are the members to notify; not sent to clients.
	UserIds []int `json:"user_ids,omitempty"`
}

type Notification struct {
	SyncHint *SyncHint `json:"sync_hint,omitempty"`
}

// ServerMessage is the envelope written to websocket clients.
type ServerMessage struct {
	Timestamp    time.Time    `json:"timestamp"`
	Notification Notification `json:"notification"`
}

// Now returns the current time truncated to the precision stored by the
// database.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
