package delta

import (
	"github.com/npezzotti/go-notify/internal/database"
	"github.com/npezzotti/go-notify/internal/types"
)

func ToMessage(m database.Message) types.Message {
	return types.Message{
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

func ToMessages(ms []database.Message) []types.Message {
	out := make([]types.Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, ToMessage(m))
	}
	return out
}

func snapshotMessage(s *database.MessageSnapshot) *types.Message {
	if s == nil {
		return nil
	}
	return &types.Message{
		Id:           s.Id,
		ChannelId:    s.ChannelId,
		SentByUserId: s.SentByUserId,
		Title:        s.Title,
		Body:         s.Body,
		BodyRaw:      s.BodyRaw,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func ToChannel(c database.Channel) types.Channel {
	return types.Channel{
		Id:          c.Id,
		Identifier:  c.Identifier,
		Title:       c.Title,
		Description: c.Description,
		OwnerId:     c.OwnerId,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toSyncChannel(sc database.SyncChannel) types.SyncChannel {
	return types.SyncChannel{
		Id:                  sc.ChannelId,
		Identifier:          sc.Identifier,
		Title:               sc.Title,
		Description:         sc.Description,
		CreatedAt:           sc.CreatedAt,
		UpdatedAt:           sc.UpdatedAt,
		MembershipCreatedAt: sc.MembershipCreatedAt,
		LastMessage:         snapshotMessage(sc.LastMessage),
		NumUnreadMessages:   sc.NumUnreadMessages,
		LastMessageRead:     snapshotMessage(sc.LastMessageRead),
	}
}
