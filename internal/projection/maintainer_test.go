package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-notify/internal/apperr"
	"github.com/npezzotti/go-notify/internal/database"
	"github.com/npezzotti/go-notify/internal/sms"
	"github.com/npezzotti/go-notify/internal/testutil"
	"github.com/npezzotti/go-notify/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	now     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	owner   = database.Account{Id: 10, Username: "owner", SystemRole: database.SystemRoleChannelAdmin}
	channel = database.Channel{Id: 1, Identifier: "alerts", Title: "Alerts", OwnerId: 10}
)

func newTestMaintainer(t *testing.T, opts ...Option) (*Maintainer, *database.MockGoNotifyRepository, *sms.MockSender) {
	db := new(database.MockGoNotifyRepository)
	sender := new(sms.MockSender)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	m := New(db, sender, testutil.TestLogger(t), opts...)
	db.On("InTx", mock.Anything).Return(nil)
	return m, db, sender
}

func message(id int64) database.Message {
	return database.Message{
		Id:        id,
		ChannelId: channel.Id,
		Title:     "title",
		Body:      "body",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateChannel(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	created := database.Channel{Id: 3, Identifier: "Ops-Room", Title: "Ops", OwnerId: owner.Id, CreatedAt: now, UpdatedAt: now}
	db.On("CreateChannel", mock.Anything, database.CreateChannelParams{
		Identifier:  "Ops-Room",
		Title:       "Ops",
		Description: "on call",
		OwnerId:     owner.Id,
		CreatedAt:   now,
	}).Return(created, nil)

	ch, err := m.CreateChannel(context.Background(), owner, ChannelInput{
		Identifier:  " Ops-Room ",
		Title:       "Ops",
		Description: "on call",
	})
	require.NoError(t, err)
	assert.Equal(t, created, ch)
	db.AssertExpectations(t)
}

func TestCreateChannel_Validation(t *testing.T) {
	tcases := []struct {
		name  string
		input ChannelInput
		field string
	}{
		{
			name:  "identifier too short",
			input: ChannelInput{Identifier: "abc", Title: "t"},
			field: "identifier",
		},
		{
			name:  "identifier starts with digit",
			input: ChannelInput{Identifier: "1abc", Title: "t"},
			field: "identifier",
		},
		{
			name:  "identifier with space",
			input: ChannelInput{Identifier: "ab cd", Title: "t"},
			field: "identifier",
		},
		{
			name:  "missing title",
			input: ChannelInput{Identifier: "abcd"},
			field: "title",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			m, db, _ := newTestMaintainer(t)

			_, err := m.CreateChannel(context.Background(), owner, tc.input)
			require.Error(t, err)

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			assert.Equal(t, tc.field, appErr.Field)
			db.AssertNotCalled(t, "InTx", mock.Anything)
		})
	}
}

func TestCreateChannel_DuplicateIdentifier(t *testing.T) {
	m, db, _ := newTestMaintainer(t)
	db.On("CreateChannel", mock.Anything, mock.Anything).
		Return(database.Channel{}, apperr.Conflict("identifier", "identifier belongs to another channel", nil))

	_, err := m.CreateChannel(context.Background(), owner, ChannelInput{Identifier: "alerts", Title: "Alerts"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestEditChannel(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	updated := channel
	updated.Title = "Alerts v2"
	updated.UpdatedAt = now

	db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
	db.On("UpdateChannel", mock.Anything, database.UpdateChannelParams{
		Id:         channel.Id,
		Identifier: "alerts",
		Title:      "Alerts v2",
		UpdatedAt:  now,
	}).Return(updated, nil)
	db.On("SetChannelUpdatedAt", mock.Anything, channel.Id, now).Return(nil)
	db.On("ListMemberIds", mock.Anything, channel.Id).Return([]int{10, 11}, nil)

	ch, change, err := m.EditChannel(context.Background(), channel, ChannelInput{Identifier: "alerts", Title: "Alerts v2"})
	require.NoError(t, err)
	assert.Equal(t, "Alerts v2", ch.Title)
	assert.Equal(t, Change{ChannelId: channel.Id, Reason: types.ReasonChannel, UserIds: []int{10, 11}}, change)
	db.AssertExpectations(t)
}

func TestDeleteChannel(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	lock := db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
	list := db.On("ListMemberIds", mock.Anything, channel.Id).Return([]int{10, 11}, nil).NotBefore(lock)
	msgs := db.On("DeleteChannelMessages", mock.Anything, channel.Id).Return(nil).NotBefore(list)
	members := db.On("DeleteChannelMemberships", mock.Anything, channel.Id).Return(nil).NotBefore(msgs)
	db.On("DeleteChannel", mock.Anything, channel.Id).Return(nil).NotBefore(members)

	change, err := m.DeleteChannel(context.Background(), channel)
	require.NoError(t, err)
	assert.Equal(t, types.ReasonChannelDeleted, change.Reason)
	assert.Equal(t, []int{10, 11}, change.UserIds)
	db.AssertExpectations(t)
}

func TestDeleteChannel_FailureAborts(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
	db.On("ListMemberIds", mock.Anything, channel.Id).Return([]int{10}, nil)
	db.On("DeleteChannelMessages", mock.Anything, channel.Id).Return(errors.New("disk full"))

	_, err := m.DeleteChannel(context.Background(), channel)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAborted, apperr.KindOf(err))
	db.AssertNotCalled(t, "DeleteChannelMemberships", mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "DeleteChannel", mock.Anything, mock.Anything)
}

func TestCreateMessage(t *testing.T) {
	m, db, sender := newTestMaintainer(t)

	created := message(5)
	db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
	db.On("CreateMessage", mock.Anything, database.CreateMessageParams{
		ChannelId: channel.Id,
		Title:     "title",
		Body:      "body",
		CreatedAt: now,
	}).Return(created, nil)
	db.On("ApplyMessageCreated", mock.Anything, channel.Id, created.Snapshot(), now).Return(nil)
	db.On("ListMemberIds", mock.Anything, channel.Id).Return([]int{10, 11}, nil)

	msg, change, err := m.CreateMessage(context.Background(), channel, owner, MessageInput{Title: "title", Body: "body"})
	require.NoError(t, err)
	assert.Equal(t, created, msg)
	assert.Equal(t, Change{ChannelId: channel.Id, Reason: types.ReasonMessages, UserIds: []int{10, 11}}, change)

	db.AssertExpectations(t)
	db.AssertNotCalled(t, "MarkMessageRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateMessage_SenderReadsOwn(t *testing.T) {
	m, db, _ := newTestMaintainer(t, WithSenderReadsOwnMessages(true))

	admin := database.Account{Id: 99, SystemRole: database.SystemRoleRootAdmin}
	created := message(6)
	sentBy := admin.Id
	created.SentByUserId = &sentBy

	db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
	db.On("CreateMessage", mock.Anything, database.CreateMessageParams{
		ChannelId:    channel.Id,
		SentByUserId: &sentBy,
		Title:        "title",
		Body:         "body",
		CreatedAt:    now,
	}).Return(created, nil)
	apply := db.On("ApplyMessageCreated", mock.Anything, channel.Id, created.Snapshot(), now).Return(nil)
	db.On("MarkMessageRead", mock.Anything, admin.Id, channel.Id, created.Snapshot(), now).Return(nil).NotBefore(apply)
	db.On("ListMemberIds", mock.Anything, channel.Id).Return([]int{10, 99}, nil)

	_, _, err := m.CreateMessage(context.Background(), channel, admin, MessageInput{Title: "title", Body: "body"})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestCreateMessage_Sms(t *testing.T) {
	m, db, sender := newTestMaintainer(t, WithLinkURL("https://notify.example"))

	created := message(7)
	created.BodyRaw = "plain body"
	db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
	db.On("ListMemberPhoneNumbers", mock.Anything, channel.Id).Return([]string{"+15550001"}, nil)
	sender.On("Send", mock.Anything, []string{"+15550001"}, "https://notify.example\n\nAlerts\n\ntitle\nplain body").Return(nil)
	db.On("CreateMessage", mock.Anything, mock.Anything).Return(created, nil)
	db.On("ApplyMessageCreated", mock.Anything, channel.Id, created.Snapshot(), now).Return(nil)
	db.On("ListMemberIds", mock.Anything, channel.Id).Return([]int{10}, nil)

	_, _, err := m.CreateMessage(context.Background(), channel, owner, MessageInput{
		Title:      "title",
		Body:       "<p>body</p>",
		BodyRaw:    "plain body",
		SmsEnabled: true,
	})
	require.NoError(t, err)
	sender.AssertExpectations(t)
	db.AssertExpectations(t)
}

func TestCreateMessage_SmsFailures(t *testing.T) {
	tcases := []struct {
		name    string
		phones  []string
		sendErr error
		target  error
	}{
		{
			name:   "no recipients",
			phones: []string{},
			target: sms.ErrNoRecipients,
		},
		{
			name:    "delivery failed",
			phones:  []string{"+15550001"},
			sendErr: &sms.DeliveryError{StatusCode: 402, Message: "no credit"},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			m, db, sender := newTestMaintainer(t)

			db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
			db.On("ListMemberPhoneNumbers", mock.Anything, channel.Id).Return(tc.phones, nil)
			if len(tc.phones) > 0 {
				sender.On("Send", mock.Anything, tc.phones, mock.Anything).Return(tc.sendErr)
			}

			_, _, err := m.CreateMessage(context.Background(), channel, owner, MessageInput{
				Title:      "title",
				Body:       "body",
				SmsEnabled: true,
			})
			require.Error(t, err)
			assert.Equal(t, apperr.KindAborted, apperr.KindOf(err))
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			} else {
				assert.True(t, sms.IsDeliveryError(err))
			}

			db.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
			db.AssertNotCalled(t, "ApplyMessageCreated", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateMessage_Validation(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	_, _, err := m.CreateMessage(context.Background(), channel, owner, MessageInput{Title: "title", Body: "   "})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "body", appErr.Field)

	_, _, err = m.CreateMessage(context.Background(), channel, owner, MessageInput{Body: "body"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "title", appErr.Field)

	db.AssertNotCalled(t, "InTx", mock.Anything)
}

func TestEditMessage(t *testing.T) {
	m, db, sender := newTestMaintainer(t)

	original := message(4)
	updated := original
	updated.Title = "fixed"
	updated.UpdatedAt = now.Add(time.Minute)
	last := message(9)

	db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
	db.On("ListMemberPhoneNumbers", mock.Anything, channel.Id).Return([]string{"+15550001"}, nil)
	sender.On("Send", mock.Anything, []string{"+15550001"}, "Alerts\n\nfixed (edited)\nbody").Return(nil)
	db.On("UpdateMessage", mock.Anything, database.UpdateMessageParams{
		Id:        original.Id,
		Title:     "fixed",
		Body:      "body",
		UpdatedAt: now,
	}).Return(updated, nil)
	db.On("LastMessage", mock.Anything, channel.Id).Return(&last, nil)
	db.On("SetLastMessage", mock.Anything, channel.Id, last.Snapshot(), updated.UpdatedAt).Return(nil)
	db.On("RefreshLastMessageRead", mock.Anything, channel.Id, updated.Snapshot(), updated.UpdatedAt).Return(nil)
	db.On("ListMemberIds", mock.Anything, channel.Id).Return([]int{10}, nil)

	msg, change, err := m.EditMessage(context.Background(), channel, original, MessageInput{
		Title:      "fixed",
		Body:       "body",
		SmsEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed", msg.Title)
	assert.Equal(t, types.ReasonMessages, change.Reason)
	db.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestEditMessage_OtherChannel(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	foreign := message(4)
	foreign.ChannelId = 2

	_, _, err := m.EditMessage(context.Background(), channel, foreign, MessageInput{Title: "t", Body: "b"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	db.AssertNotCalled(t, "InTx", mock.Anything)
}

func TestDeleteMessage(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	deleted := message(3)
	prev := message(2)

	db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
	del := db.On("DeleteMessage", mock.Anything, deleted.Id).Return(nil)
	db.On("LastMessage", mock.Anything, channel.Id).Return(&prev, nil).NotBefore(del)
	db.On("SetLastMessage", mock.Anything, channel.Id, prev.Snapshot(), now).Return(nil)
	dec := db.On("DecrementUnreadBefore", mock.Anything, channel.Id, deleted.Id, now).Return(nil).NotBefore(del)
	db.On("PrecedingMessage", mock.Anything, channel.Id, deleted.Id).Return(&prev, nil)
	db.On("RewindLastMessageRead", mock.Anything, channel.Id, deleted.Id, prev.Snapshot(), now).Return(nil).NotBefore(dec)
	db.On("ListMemberIds", mock.Anything, channel.Id).Return([]int{10, 11}, nil)

	change, err := m.DeleteMessage(context.Background(), channel, deleted)
	require.NoError(t, err)
	assert.Equal(t, Change{ChannelId: channel.Id, Reason: types.ReasonMessages, UserIds: []int{10, 11}}, change)
	db.AssertExpectations(t)
}

func TestDeleteMessage_LastRemaining(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	only := message(1)
	var none *database.MessageSnapshot

	db.On("LockChannel", mock.Anything, channel.Id, false).Return(nil)
	db.On("DeleteMessage", mock.Anything, only.Id).Return(nil)
	db.On("LastMessage", mock.Anything, channel.Id).Return(nil, nil)
	db.On("SetLastMessage", mock.Anything, channel.Id, none, now).Return(nil)
	db.On("DecrementUnreadBefore", mock.Anything, channel.Id, only.Id, now).Return(nil)
	db.On("PrecedingMessage", mock.Anything, channel.Id, only.Id).Return(nil, nil)
	db.On("RewindLastMessageRead", mock.Anything, channel.Id, only.Id, none, now).Return(nil)
	db.On("ListMemberIds", mock.Anything, channel.Id).Return([]int{}, nil)

	_, err := m.DeleteMessage(context.Background(), channel, only)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestDeleteMessage_Unavailable(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	db.On("LockChannel", mock.Anything, channel.Id, false).Return(apperr.Unavailable("datastore unavailable", context.DeadlineExceeded))

	_, err := m.DeleteMessage(context.Background(), channel, message(3))
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	db.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything)
}

func TestAddMembers(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	last := message(8)
	db.On("LockChannel", mock.Anything, channel.Id, true).Return(nil)
	db.On("LastMessage", mock.Anything, channel.Id).Return(&last, nil)
	db.On("CountMessagesAfter", mock.Anything, channel.Id, int64(0)).Return(8, nil)
	db.On("CreateMemberships", mock.Anything, channel.Id, []int{11, 12}, last.Snapshot(), 8, now).Return([]int{12}, nil)

	change, err := m.AddMembers(context.Background(), channel, []int{11, 12})
	require.NoError(t, err)
	assert.Equal(t, Change{ChannelId: channel.Id, Reason: types.ReasonMembership, UserIds: []int{12}}, change)
	db.AssertExpectations(t)
}

func TestAddMembers_Empty(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	_, err := m.AddMembers(context.Background(), channel, nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	db.AssertNotCalled(t, "InTx", mock.Anything)
}

func TestRemoveMembers(t *testing.T) {
	m, db, _ := newTestMaintainer(t)

	db.On("LockChannel", mock.Anything, channel.Id, true).Return(nil)
	db.On("DeleteMemberships", mock.Anything, channel.Id, []int{11, 13}).Return([]int{11}, nil)

	change, err := m.RemoveMembers(context.Background(), channel, []int{11, 13})
	require.NoError(t, err)
	assert.Equal(t, []int{11}, change.UserIds)
	assert.Equal(t, types.ReasonMembership, change.Reason)
}

func TestSmsText(t *testing.T) {
	in := MessageInput{Title: "Outage", Body: "<b>db down</b>"}
	assert.Equal(t, "https://x\n\nAlerts\n\nOutage\n<b>db down</b>", smsText("https://x", channel, in, false))
	assert.Equal(t, "Alerts\n\nOutage (edited)\n<b>db down</b>", smsText("", channel, in, true))

	in.BodyRaw = "db down"
	assert.Equal(t, "Alerts\n\nOutage\ndb down", smsText("", channel, in, false))
}
