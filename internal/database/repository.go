package database

import (
	"context"
	"time"
)

// Queries are the statements available both on the connection pool and
// inside a transaction.
type Queries interface {
	GetAccountById(ctx context.Context, id int) (Account, error)

	GetChannelById(ctx context.Context, id int) (Channel, error)
	GetChannelByIdentifier(ctx context.Context, identifier string) (Channel, error)
	// LockChannel takes a row lock on the channel for the rest of the
	// transaction. A shared lock admits other shared holders.
	LockChannel(ctx context.Context, id int, shared bool) error
	CreateChannel(ctx context.Context, params CreateChannelParams) (Channel, error)
	UpdateChannel(ctx context.Context, params UpdateChannelParams) (Channel, error)
	DeleteChannel(ctx context.Context, id int) error

	GetMessage(ctx context.Context, id int64) (Message, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	UpdateMessage(ctx context.Context, params UpdateMessageParams) (Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	DeleteChannelMessages(ctx context.Context, channelId int) error
	// LastMessage returns the channel's message with the highest id, or nil.
	LastMessage(ctx context.Context, channelId int) (*Message, error)
	// PrecedingMessage returns the message immediately before messageId, or nil.
	PrecedingMessage(ctx context.Context, channelId int, messageId int64) (*Message, error)
	// CountMessagesAfter counts messages with id greater than messageId.
	CountMessagesAfter(ctx context.Context, channelId int, messageId int64) (int, error)
	ListMessages(ctx context.Context, window MessageWindow) ([]Message, error)

	GetMembership(ctx context.Context, userId, channelId int) (Membership, error)
	// CreateMemberships joins the given users, skipping existing members, and
	// returns the ids that were actually added.
	CreateMemberships(ctx context.Context, channelId int, userIds []int, last *MessageSnapshot, unread int, at time.Time) ([]int, error)
	// DeleteMemberships returns the ids that were actually removed.
	DeleteMemberships(ctx context.Context, channelId int, userIds []int) ([]int, error)
	DeleteChannelMemberships(ctx context.Context, channelId int) error
	ListMemberIds(ctx context.Context, channelId int) ([]int, error)
	ListMemberPhoneNumbers(ctx context.Context, channelId int) ([]string, error)

	// Projection writes. Each touches every membership of the channel unless
	// noted otherwise.
	ApplyMessageCreated(ctx context.Context, channelId int, last *MessageSnapshot, at time.Time) error
	MarkMessageRead(ctx context.Context, userId, channelId int, read *MessageSnapshot, at time.Time) error
	SetLastMessage(ctx context.Context, channelId int, last *MessageSnapshot, at time.Time) error
	RefreshLastMessageRead(ctx context.Context, channelId int, read *MessageSnapshot, at time.Time) error
	DecrementUnreadBefore(ctx context.Context, channelId int, deletedId int64, at time.Time) error
	RewindLastMessageRead(ctx context.Context, channelId int, deletedId int64, prev *MessageSnapshot, at time.Time) error
	SetChannelUpdatedAt(ctx context.Context, channelId int, at time.Time) error
	// AdvanceReadState moves the read pointer of one membership forward. It
	// reports false when the stored pointer is already at or past the new one.
	AdvanceReadState(ctx context.Context, params ReadStateParams) (bool, error)

	// Listings return one page of rows, newest first, with the total number
	// of rows matching the filter.
	ListChannels(ctx context.Context, filter ChannelFilter) ([]ChannelListing, int, error)
	SearchMessages(ctx context.Context, filter MessageFilter) ([]Message, int, error)
	ListMembers(ctx context.Context, filter MemberFilter) ([]Member, int, error)

	ListSyncChannels(ctx context.Context, userId int) ([]SyncChannel, error)
	ListNewOrEditedChannels(ctx context.Context, userId int, since time.Time) ([]SyncChannel, error)
	ListMessageCollectionChanges(ctx context.Context, userId int, since time.Time) ([]SyncChannel, error)
	CountMemberships(ctx context.Context, userId int) (int, error)
	ListJoinedChannelIds(ctx context.Context, userId int) ([]int, error)
}

type GoNotifyRepository interface {
	Queries
	Ping(ctx context.Context) error
	// InTx runs fn in one transaction. The transaction is committed when fn
	// returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
