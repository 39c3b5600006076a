// Package delta answers client sync requests: the channel delta since a
// checkpoint, message windows and read acknowledgements.
package delta

import (
	"context"
	"log"
	"time"

	"github.com/npezzotti/go-notify/internal/apperr"
	"github.com/npezzotti/go-notify/internal/database"
	"github.com/npezzotti/go-notify/internal/types"
)

const DefaultPageSize = 10

type Option func(*Service)

func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithCheckpointLag moves the returned checkpoint back by d. Writers stamp
// rows before they commit, so d should cover the longest transaction.
func WithCheckpointLag(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lag = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	db       database.GoNotifyRepository
	logger   *log.Logger
	pageSize int
	lag      time.Duration
	now      func() time.Time
}

func NewService(db database.GoNotifyRepository, logger *log.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		logger:   logger,
		pageSize: DefaultPageSize,
		now:      types.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) PageSize() int {
	return s.pageSize
}

// Sync computes the channel delta for userId since params.LastSync. The
// returned checkpoint is taken before any query runs, less the checkpoint lag.
func (s *Service) Sync(ctx context.Context, userId int, params SyncParams) (types.SyncResponse, error) {
	resp := types.SyncResponse{
		LastSyncTimestamp: s.now().Add(-s.lag),
		Channels: types.ChannelDelta{
			Added:       []types.SyncChannel{},
			Edited:      []types.SyncChannel{},
			ExistingIds: []int{},
		},
		Messages: types.MessageDelta{
			Added:   []types.Message{},
			Edited:  []types.Message{},
			Removed: []int64{},
		},
	}

	if params.LastSync == nil {
		channels, err := s.db.ListSyncChannels(ctx, userId)
		if err != nil {
			return types.SyncResponse{}, err
		}
		for _, c := range channels {
			resp.Channels.Added = append(resp.Channels.Added, toSyncChannel(c))
		}
		resp.ShouldResetCurrentData = true
		return resp, nil
	}

	since := *params.LastSync
	changed, err := s.db.ListNewOrEditedChannels(ctx, userId, since)
	if err != nil {
		return types.SyncResponse{}, err
	}
	for _, c := range changed {
		if c.MembershipCreatedAt != nil && c.MembershipCreatedAt.After(since) {
			resp.Channels.Added = append(resp.Channels.Added, toSyncChannel(c))
		} else {
			resp.Channels.Edited = append(resp.Channels.Edited, toSyncChannel(c))
		}
	}

	withMessages, err := s.db.ListMessageCollectionChanges(ctx, userId, since)
	if err != nil {
		return types.SyncResponse{}, err
	}
	for _, c := range withMessages {
		resp.Channels.Edited = append(resp.Channels.Edited, toSyncChannel(c))
	}

	// removals are detected by count
	current, err := s.db.CountMemberships(ctx, userId)
	if err != nil {
		return types.SyncResponse{}, err
	}
	if current != params.MembershipCount+len(resp.Channels.Added) {
		resp.Channels.IsAnyMembershipDeleted = true
		if resp.Channels.ExistingIds, err = s.db.ListJoinedChannelIds(ctx, userId); err != nil {
			return types.SyncResponse{}, err
		}
	}

	return resp, nil
}

// Messages returns one page of the channel's messages selected by cursor. A
// page shorter than the limit marks the end of the stream.
func (s *Service) Messages(ctx context.Context, channelId int, cursor Cursor) (types.MessagePage, error) {
	window := database.MessageWindow{
		ChannelId: channelId,
		Limit:     s.pageSize,
	}
	switch cursor.Direction {
	case After:
		window.AfterId = cursor.Id
	case Before:
		window.BeforeId = cursor.Id
		window.Descending = true
	}

	msgs, err := s.db.ListMessages(ctx, window)
	if err != nil {
		return types.MessagePage{}, err
	}
	return types.MessagePage{Messages: ToMessages(msgs), Limit: s.pageSize}, nil
}

type AckResult struct {
	// Found is false when the message does not exist in the channel.
	Found bool
	// Advanced is false when the stored read pointer was already at or past
	// the message.
	Advanced bool
}

// AckLastMessageVisited moves the user's read pointer forward to messageId and
// recounts the unread messages after it. The pointer never moves backward.
func (s *Service) AckLastMessageVisited(ctx context.Context, userId, channelId int, messageId int64) (AckResult, error) {
	var result AckResult
	err := s.db.InTx(ctx, func(q database.Queries) error {
		if err := q.LockChannel(ctx, channelId, true); err != nil {
			return err
		}

		msg, err := q.GetMessage(ctx, messageId)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if msg.ChannelId != channelId {
			return nil
		}
		result.Found = true

		membership, err := q.GetMembership(ctx, userId, channelId)
		if err != nil {
			return err
		}
		if read := membership.LastMessageRead; read != nil && read.Id >= msg.Id {
			return nil
		}

		unread, err := q.CountMessagesAfter(ctx, channelId, msg.Id)
		if err != nil {
			return err
		}

		result.Advanced, err = q.AdvanceReadState(ctx, database.ReadStateParams{
			UserId:            userId,
			ChannelId:         channelId,
			LastMessageRead:   msg.Snapshot(),
			NumUnreadMessages: unread,
			UpdatedAt:         s.now(),
		})
		return err
	})
	if err != nil {
		return AckResult{}, err
	}

	if !result.Found {
		s.logger.Printf("read ack by user %d for unknown message %d in channel %d", userId, messageId, channelId)
	}
	return result, nil
}
