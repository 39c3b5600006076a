// Package projection keeps the denormalized membership fields consistent with
// the channel's messages. Every operation runs in a single transaction that
// includes the mutation itself.
package projection

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/npezzotti/go-notify/internal/apperr"
	"github.com/npezzotti/go-notify/internal/database"
	"github.com/npezzotti/go-notify/internal/sms"
	"github.com/npezzotti/go-notify/internal/types"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-_]{3,}$`)

// Change describes the members affected by a committed mutation.
type Change struct {
	ChannelId int
	Reason    types.HintReason
	UserIds   []int
}

type ChannelInput struct {
	Identifier  string
	Title       string
	Description string
}

type MessageInput struct {
	Title      string
	Body       string
	BodyRaw    string
	SmsEnabled bool
}

type Option func(*Maintainer)

// WithSenderReadsOwnMessages marks a new message as read for its sender.
func WithSenderReadsOwnMessages(enabled bool) Option {
	return func(m *Maintainer) {
		m.senderReadsOwn = enabled
	}
}

// WithLinkURL sets the link placed at the top of outbound SMS text.
func WithLinkURL(url string) Option {
	return func(m *Maintainer) {
		m.linkURL = url
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Maintainer) {
		m.now = now
	}
}

type Maintainer struct {
	db             database.GoNotifyRepository
	sender         sms.Sender
	logger         *log.Logger
	senderReadsOwn bool
	linkURL        string
	now            func() time.Time
}

func New(db database.GoNotifyRepository, sender sms.Sender, logger *log.Logger, opts ...Option) *Maintainer {
	m := &Maintainer{
		db:     db,
		sender: sender,
		logger: logger,
		now:    types.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sender == nil {
		m.sender = sms.Disabled()
	}
	return m
}

func (m *Maintainer) CreateChannel(ctx context.Context, owner database.Account, in ChannelInput) (database.Channel, error) {
	in = normalizeChannel(in)
	if err := validateChannel(in); err != nil {
		return database.Channel{}, err
	}

	var channel database.Channel
	err := m.db.InTx(ctx, func(q database.Queries) error {
		var err error
		channel, err = q.CreateChannel(ctx, database.CreateChannelParams{
			Identifier:  in.Identifier,
			Title:       in.Title,
			Description: in.Description,
			OwnerId:     owner.Id,
			CreatedAt:   m.now(),
		})
		return err
	})
	if err != nil {
		return database.Channel{}, abort("create channel", err)
	}

	m.logger.Printf("channel %d %q created by user %d", channel.Id, channel.Identifier, owner.Id)
	return channel, nil
}

func (m *Maintainer) EditChannel(ctx context.Context, channel database.Channel, in ChannelInput) (database.Channel, Change, error) {
	in = normalizeChannel(in)
	if err := validateChannel(in); err != nil {
		return database.Channel{}, Change{}, err
	}

	var (
		updated database.Channel
		members []int
	)
	err := m.db.InTx(ctx, func(q database.Queries) error {
		if err := q.LockChannel(ctx, channel.Id, false); err != nil {
			return err
		}

		var err error
		updated, err = q.UpdateChannel(ctx, database.UpdateChannelParams{
			Id:          channel.Id,
			Identifier:  in.Identifier,
			Title:       in.Title,
			Description: in.Description,
			UpdatedAt:   m.now(),
		})
		if err != nil {
			return err
		}

		if err := q.SetChannelUpdatedAt(ctx, channel.Id, updated.UpdatedAt); err != nil {
			return err
		}

		members, err = q.ListMemberIds(ctx, channel.Id)
		return err
	})
	if err != nil {
		return database.Channel{}, Change{}, abort("edit channel", err)
	}

	return updated, Change{ChannelId: channel.Id, Reason: types.ReasonChannel, UserIds: members}, nil
}

// DeleteChannel removes the channel with all of its messages and memberships.
func (m *Maintainer) DeleteChannel(ctx context.Context, channel database.Channel) (Change, error) {
	var members []int
	err := m.db.InTx(ctx, func(q database.Queries) error {
		if err := q.LockChannel(ctx, channel.Id, false); err != nil {
			return err
		}

		var err error
		if members, err = q.ListMemberIds(ctx, channel.Id); err != nil {
			return err
		}
		if err := q.DeleteChannelMessages(ctx, channel.Id); err != nil {
			return err
		}
		if err := q.DeleteChannelMemberships(ctx, channel.Id); err != nil {
			return err
		}
		return q.DeleteChannel(ctx, channel.Id)
	})
	if err != nil {
		return Change{}, abort("delete channel", err)
	}

	m.logger.Printf("channel %d deleted, %d memberships removed", channel.Id, len(members))
	return Change{ChannelId: channel.Id, Reason: types.ReasonChannelDeleted, UserIds: members}, nil
}

func (m *Maintainer) CreateMessage(ctx context.Context, channel database.Channel, sender database.Account, in MessageInput) (database.Message, Change, error) {
	in = normalizeMessage(in)
	if err := validateMessage(in); err != nil {
		return database.Message{}, Change{}, err
	}

	var (
		msg     database.Message
		members []int
	)
	err := m.db.InTx(ctx, func(q database.Queries) error {
		if err := q.LockChannel(ctx, channel.Id, false); err != nil {
			return err
		}

		if in.SmsEnabled {
			if err := m.notify(ctx, q, channel, in, false); err != nil {
				return err
			}
		}

		now := m.now()
		var err error
		msg, err = q.CreateMessage(ctx, database.CreateMessageParams{
			ChannelId:    channel.Id,
			SentByUserId: sentBy(channel, sender),
			Title:        in.Title,
			Body:         in.Body,
			BodyRaw:      in.BodyRaw,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		snap := msg.Snapshot()
		if err := q.ApplyMessageCreated(ctx, channel.Id, snap, now); err != nil {
			return err
		}
		if m.senderReadsOwn {
			if err := q.MarkMessageRead(ctx, sender.Id, channel.Id, snap, now); err != nil {
				return err
			}
		}

		members, err = q.ListMemberIds(ctx, channel.Id)
		return err
	})
	if err != nil {
		return database.Message{}, Change{}, abort("create message", err)
	}

	return msg, Change{ChannelId: channel.Id, Reason: types.ReasonMessages, UserIds: members}, nil
}

func (m *Maintainer) EditMessage(ctx context.Context, channel database.Channel, message database.Message, in MessageInput) (database.Message, Change, error) {
	if message.ChannelId != channel.Id {
		return database.Message{}, Change{}, apperr.NotFound("message not found")
	}
	in = normalizeMessage(in)
	if err := validateMessage(in); err != nil {
		return database.Message{}, Change{}, err
	}

	var (
		updated database.Message
		members []int
	)
	err := m.db.InTx(ctx, func(q database.Queries) error {
		if err := q.LockChannel(ctx, channel.Id, false); err != nil {
			return err
		}

		if in.SmsEnabled {
			if err := m.notify(ctx, q, channel, in, true); err != nil {
				return err
			}
		}

		var err error
		updated, err = q.UpdateMessage(ctx, database.UpdateMessageParams{
			Id:        message.Id,
			Title:     in.Title,
			Body:      in.Body,
			BodyRaw:   in.BodyRaw,
			UpdatedAt: m.now(),
		})
		if err != nil {
			return err
		}

		last, err := q.LastMessage(ctx, channel.Id)
		if err != nil {
			return err
		}
		if err := q.SetLastMessage(ctx, channel.Id, snapshotOf(last), updated.UpdatedAt); err != nil {
			return err
		}
		if err := q.RefreshLastMessageRead(ctx, channel.Id, updated.Snapshot(), updated.UpdatedAt); err != nil {
			return err
		}

		members, err = q.ListMemberIds(ctx, channel.Id)
		return err
	})
	if err != nil {
		return database.Message{}, Change{}, abort("edit message", err)
	}

	return updated, Change{ChannelId: channel.Id, Reason: types.ReasonMessages, UserIds: members}, nil
}

// DeleteMessage hard-deletes the message. Unread counters are decremented
// before read pointers at the deleted message are rewound to its predecessor.
func (m *Maintainer) DeleteMessage(ctx context.Context, channel database.Channel, message database.Message) (Change, error) {
	if message.ChannelId != channel.Id {
		return Change{}, apperr.NotFound("message not found")
	}

	var members []int
	err := m.db.InTx(ctx, func(q database.Queries) error {
		if err := q.LockChannel(ctx, channel.Id, false); err != nil {
			return err
		}
		if err := q.DeleteMessage(ctx, message.Id); err != nil {
			return err
		}

		now := m.now()
		last, err := q.LastMessage(ctx, channel.Id)
		if err != nil {
			return err
		}
		if err := q.SetLastMessage(ctx, channel.Id, snapshotOf(last), now); err != nil {
			return err
		}
		if err := q.DecrementUnreadBefore(ctx, channel.Id, message.Id, now); err != nil {
			return err
		}

		prev, err := q.PrecedingMessage(ctx, channel.Id, message.Id)
		if err != nil {
			return err
		}
		if err := q.RewindLastMessageRead(ctx, channel.Id, message.Id, snapshotOf(prev), now); err != nil {
			return err
		}

		members, err = q.ListMemberIds(ctx, channel.Id)
		return err
	})
	if err != nil {
		return Change{}, abort("delete message", err)
	}

	return Change{ChannelId: channel.Id, Reason: types.ReasonMessages, UserIds: members}, nil
}

// AddMembers joins the users that are not already members. New memberships
// start with the channel's current last message and its total message count.
func (m *Maintainer) AddMembers(ctx context.Context, channel database.Channel, userIds []int) (Change, error) {
	if len(userIds) == 0 {
		return Change{}, apperr.Validation("user_ids", "at least one user id is required")
	}

	var added []int
	err := m.db.InTx(ctx, func(q database.Queries) error {
		if err := q.LockChannel(ctx, channel.Id, true); err != nil {
			return err
		}

		last, err := q.LastMessage(ctx, channel.Id)
		if err != nil {
			return err
		}
		total, err := q.CountMessagesAfter(ctx, channel.Id, 0)
		if err != nil {
			return err
		}

		added, err = q.CreateMemberships(ctx, channel.Id, userIds, snapshotOf(last), total, m.now())
		return err
	})
	if err != nil {
		return Change{}, abort("add members", err)
	}

	return Change{ChannelId: channel.Id, Reason: types.ReasonMembership, UserIds: added}, nil
}

func (m *Maintainer) RemoveMembers(ctx context.Context, channel database.Channel, userIds []int) (Change, error) {
	if len(userIds) == 0 {
		return Change{}, apperr.Validation("user_ids", "at least one user id is required")
	}

	var removed []int
	err := m.db.InTx(ctx, func(q database.Queries) error {
		if err := q.LockChannel(ctx, channel.Id, true); err != nil {
			return err
		}

		var err error
		removed, err = q.DeleteMemberships(ctx, channel.Id, userIds)
		return err
	})
	if err != nil {
		return Change{}, abort("remove members", err)
	}

	return Change{ChannelId: channel.Id, Reason: types.ReasonMembership, UserIds: removed}, nil
}

func (m *Maintainer) notify(ctx context.Context, q database.Queries, channel database.Channel, in MessageInput, edited bool) error {
	phones, err := q.ListMemberPhoneNumbers(ctx, channel.Id)
	if err != nil {
		return err
	}
	if len(phones) == 0 {
		return apperr.Aborted("sms not sent", sms.ErrNoRecipients)
	}

	if err := m.sender.Send(ctx, phones, smsText(m.linkURL, channel, in, edited)); err != nil {
		m.logger.Printf("sms to %d members of channel %d failed: %v", len(phones), channel.Id, err)
		return apperr.Aborted("sms not sent", err)
	}
	return nil
}

func smsText(link string, channel database.Channel, in MessageInput, edited bool) string {
	var b strings.Builder
	if link != "" {
		b.WriteString(link)
		b.WriteString("\n\n")
	}
	b.WriteString(channel.Title)
	b.WriteString("\n\n")
	b.WriteString(in.Title)
	if edited {
		b.WriteString(" (edited)")
	}
	b.WriteString("\n")
	if in.BodyRaw != "" {
		b.WriteString(in.BodyRaw)
	} else {
		b.WriteString(in.Body)
	}
	return b.String()
}

// sentBy is nil for messages posted by the channel owner.
func sentBy(channel database.Channel, sender database.Account) *int {
	if sender.Id == 0 || sender.Id == channel.OwnerId {
		return nil
	}
	id := sender.Id
	return &id
}

func snapshotOf(msg *database.Message) *database.MessageSnapshot {
	if msg == nil {
		return nil
	}
	return msg.Snapshot()
}

func normalizeChannel(in ChannelInput) ChannelInput {
	in.Identifier = strings.TrimSpace(in.Identifier)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func validateChannel(in ChannelInput) error {
	if !identifierPattern.MatchString(in.Identifier) {
		return apperr.Validation("identifier", "identifier must start with a letter and contain at least 4 letters, digits, '-' or '_'")
	}
	if in.Title == "" {
		return apperr.Validation("title", "title is required")
	}
	return nil
}

func normalizeMessage(in MessageInput) MessageInput {
	in.Title = strings.TrimSpace(in.Title)
	in.BodyRaw = strings.TrimSpace(in.BodyRaw)
	return in
}

func validateMessage(in MessageInput) error {
	if in.Title == "" {
		return apperr.Validation("title", "title is required")
	}
	if strings.TrimSpace(in.Body) == "" {
		return apperr.Validation("body", "body is required")
	}
	return nil
}

// abort keeps classified errors and wraps everything else as a rolled back
// transaction.
func abort(op string, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		return apperr.Aborted(fmt.Sprintf("%s: transaction aborted", op), err)
	}
	return err
}
