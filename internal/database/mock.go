package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockGoNotifyRepository runs InTx callbacks against itself so expectations
// set on the mock cover the statements issued inside a transaction.
type MockGoNotifyRepository struct {
	mock.Mock
}

func (m *MockGoNotifyRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) InTx(ctx context.Context, fn func(q Queries) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}

func (m *MockGoNotifyRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockGoNotifyRepository) GetAccountById(ctx context.Context, id int) (Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockGoNotifyRepository) GetChannelById(ctx context.Context, id int) (Channel, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Channel), args.Error(1)
}

func (m *MockGoNotifyRepository) GetChannelByIdentifier(ctx context.Context, identifier string) (Channel, error) {
	args := m.Called(ctx, identifier)
	return args.Get(0).(Channel), args.Error(1)
}

func (m *MockGoNotifyRepository) LockChannel(ctx context.Context, id int, shared bool) error {
	args := m.Called(ctx, id, shared)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) CreateChannel(ctx context.Context, params CreateChannelParams) (Channel, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Channel), args.Error(1)
}

func (m *MockGoNotifyRepository) UpdateChannel(ctx context.Context, params UpdateChannelParams) (Channel, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Channel), args.Error(1)
}

func (m *MockGoNotifyRepository) DeleteChannel(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) GetMessage(ctx context.Context, id int64) (Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockGoNotifyRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockGoNotifyRepository) UpdateMessage(ctx context.Context, params UpdateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockGoNotifyRepository) DeleteMessage(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) DeleteChannelMessages(ctx context.Context, channelId int) error {
	args := m.Called(ctx, channelId)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) LastMessage(ctx context.Context, channelId int) (*Message, error) {
	args := m.Called(ctx, channelId)
	if msg, ok := args.Get(0).(*Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) PrecedingMessage(ctx context.Context, channelId int, messageId int64) (*Message, error) {
	args := m.Called(ctx, channelId, messageId)
	if msg, ok := args.Get(0).(*Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) CountMessagesAfter(ctx context.Context, channelId int, messageId int64) (int, error) {
	args := m.Called(ctx, channelId, messageId)
	return args.Int(0), args.Error(1)
}

func (m *MockGoNotifyRepository) ListMessages(ctx context.Context, window MessageWindow) ([]Message, error) {
	args := m.Called(ctx, window)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) GetMembership(ctx context.Context, userId, channelId int) (Membership, error) {
	args := m.Called(ctx, userId, channelId)
	return args.Get(0).(Membership), args.Error(1)
}

func (m *MockGoNotifyRepository) CreateMemberships(ctx context.Context, channelId int, userIds []int, last *MessageSnapshot, unread int, at time.Time) ([]int, error) {
	args := m.Called(ctx, channelId, userIds, last, unread, at)
	if ids, ok := args.Get(0).([]int); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) DeleteMemberships(ctx context.Context, channelId int, userIds []int) ([]int, error) {
	args := m.Called(ctx, channelId, userIds)
	if ids, ok := args.Get(0).([]int); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) DeleteChannelMemberships(ctx context.Context, channelId int) error {
	args := m.Called(ctx, channelId)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) ListMemberIds(ctx context.Context, channelId int) ([]int, error) {
	args := m.Called(ctx, channelId)
	if ids, ok := args.Get(0).([]int); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) ListMemberPhoneNumbers(ctx context.Context, channelId int) ([]string, error) {
	args := m.Called(ctx, channelId)
	if phones, ok := args.Get(0).([]string); ok {
		return phones, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) ApplyMessageCreated(ctx context.Context, channelId int, last *MessageSnapshot, at time.Time) error {
	args := m.Called(ctx, channelId, last, at)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) MarkMessageRead(ctx context.Context, userId, channelId int, read *MessageSnapshot, at time.Time) error {
	args := m.Called(ctx, userId, channelId, read, at)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) SetLastMessage(ctx context.Context, channelId int, last *MessageSnapshot, at time.Time) error {
	args := m.Called(ctx, channelId, last, at)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) RefreshLastMessageRead(ctx context.Context, channelId int, read *MessageSnapshot, at time.Time) error {
	args := m.Called(ctx, channelId, read, at)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) DecrementUnreadBefore(ctx context.Context, channelId int, deletedId int64, at time.Time) error {
	args := m.Called(ctx, channelId, deletedId, at)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) RewindLastMessageRead(ctx context.Context, channelId int, deletedId int64, prev *MessageSnapshot, at time.Time) error {
	args := m.Called(ctx, channelId, deletedId, prev, at)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) SetChannelUpdatedAt(ctx context.Context, channelId int, at time.Time) error {
	args := m.Called(ctx, channelId, at)
	return args.Error(0)
}

func (m *MockGoNotifyRepository) AdvanceReadState(ctx context.Context, params ReadStateParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func (m *MockGoNotifyRepository) ListSyncChannels(ctx context.Context, userId int) ([]SyncChannel, error) {
	args := m.Called(ctx, userId)
	if cs, ok := args.Get(0).([]SyncChannel); ok {
		return cs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) ListNewOrEditedChannels(ctx context.Context, userId int, since time.Time) ([]SyncChannel, error) {
	args := m.Called(ctx, userId, since)
	if cs, ok := args.Get(0).([]SyncChannel); ok {
		return cs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) ListMessageCollectionChanges(ctx context.Context, userId int, since time.Time) ([]SyncChannel, error) {
	args := m.Called(ctx, userId, since)
	if cs, ok := args.Get(0).([]SyncChannel); ok {
		return cs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) CountMemberships(ctx context.Context, userId int) (int, error) {
	args := m.Called(ctx, userId)
	return args.Int(0), args.Error(1)
}

func (m *MockGoNotifyRepository) ListJoinedChannelIds(ctx context.Context, userId int) ([]int, error) {
	args := m.Called(ctx, userId)
	if ids, ok := args.Get(0).([]int); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGoNotifyRepository) ListChannels(ctx context.Context, filter ChannelFilter) ([]ChannelListing, int, error) {
	args := m.Called(ctx, filter)
	rows, _ := args.Get(0).([]ChannelListing)
	return rows, args.Int(1), args.Error(2)
}

func (m *MockGoNotifyRepository) SearchMessages(ctx context.Context, filter MessageFilter) ([]Message, int, error) {
	args := m.Called(ctx, filter)
	rows, _ := args.Get(0).([]Message)
	return rows, args.Int(1), args.Error(2)
}

func (m *MockGoNotifyRepository) ListMembers(ctx context.Context, filter MemberFilter) ([]Member, int, error) {
	args := m.Called(ctx, filter)
	rows, _ := args.Get(0).([]Member)
	return rows, args.Int(1), args.Error(2)
}
