package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/npezzotti/go-notify/internal/apperr"
	"github.com/npezzotti/go-notify/internal/database"
	"github.com/npezzotti/go-notify/internal/delta"
	"github.com/npezzotti/go-notify/internal/types"
)

const (
	defaultListPageSize = 10
	maxListPageSize     = 100
)

// pageFromQuery reads pageNum and pageSize. Missing or invalid values fall
// back to the first page of ten.
func pageFromQuery(q url.Values) database.Page {
	p := database.Page{Num: 1, Size: defaultListPageSize}
	if n, err := strconv.Atoi(q.Get("pageNum")); err == nil && n > 0 {
		p.Num = n
	}
	if n, err := strconv.Atoi(q.Get("pageSize")); err == nil && n > 0 {
		p.Size = min(n, maxListPageSize)
	}
	return p
}

func pageMeta(p database.Page, total int) types.PageMeta {
	return types.PageMeta{PageNum: p.Num, PageSize: p.Size, TotalCount: total}
}

func publicUser(a database.Account) *types.User {
	return &types.User{Id: a.Id, Username: a.Username, SystemRole: a.SystemRole}
}

// adminChannel loads the channel in the path for an admin listing.
func (s *GoNotifyApp) adminChannel(r *http.Request) (database.Channel, error) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		return database.Channel{}, NewUnauthorizedError()
	}
	if !canCreateChannels(account) {
		return database.Channel{}, NewForbiddenError()
	}
	return s.channelFromPath(r)
}

func (s *GoNotifyApp) listChannels(w http.ResponseWriter, r *http.Request) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}
	if !canCreateChannels(account) {
		s.writeError(w, NewForbiddenError())
		return
	}

	q := r.URL.Query()
	filter := database.ChannelFilter{
		SearchField: q.Get("searchField"),
		SearchValue: q.Get("searchValue"),
		Page:        pageFromQuery(q),
	}
	switch {
	case q.Get("template") == "myOwn":
		filter = database.ChannelFilter{
			OwnerId: account.Id,
			Page:    database.Page{Num: 1, Size: maxListPageSize},
		}
	case q.Get("myChannels") == "true":
		filter.OwnerId = account.Id
	}

	channels, total, err := s.db.ListChannels(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := types.Listing[types.ChannelWithOwner]{
		Entities: make([]types.ChannelWithOwner, 0, len(channels)),
		Meta:     pageMeta(filter.Page, total),
	}
	for _, c := range channels {
		resp.Entities = append(resp.Entities, types.ChannelWithOwner{
			Channel: delta.ToChannel(c.Channel),
			Owner:   publicUser(c.Owner),
		})
	}
	s.writeJson(w, http.StatusOK, resp)
}

func (s *GoNotifyApp) listMessages(w http.ResponseWriter, r *http.Request) {
	channel, err := s.adminChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	q := r.URL.Query()
	page := pageFromQuery(q)
	msgs, total, err := s.db.SearchMessages(r.Context(), database.MessageFilter{
		ChannelId:   channel.Id,
		SearchField: q.Get("searchField"),
		SearchValue: q.Get("searchValue"),
		Page:        page,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, types.Listing[types.Message]{
		Entities: delta.ToMessages(msgs),
		Meta:     pageMeta(page, total),
	})
}

func (s *GoNotifyApp) getMessage(w http.ResponseWriter, r *http.Request) {
	channel, err := s.adminChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.messageFromPath(r, channel)
	if err != nil {
		s.writeError(w, err)
		return
	}

	senderId := channel.OwnerId
	if msg.SentByUserId != nil {
		senderId = *msg.SentByUserId
	}

	detail := types.MessageDetail{
		Message: delta.ToMessage(msg),
		Channel: delta.ToChannel(channel),
	}
	sender, err := s.db.GetAccountById(r.Context(), senderId)
	switch {
	case err == nil:
		detail.SentByUser = publicUser(sender)
	case !apperr.Is(err, apperr.KindNotFound):
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, detail)
}

func (s *GoNotifyApp) listMembers(w http.ResponseWriter, r *http.Request) {
	channel, err := s.adminChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	q := r.URL.Query()
	page := pageFromQuery(q)
	members, total, err := s.db.ListMembers(r.Context(), database.MemberFilter{
		ChannelId:   channel.Id,
		SearchField: q.Get("searchField"),
		SearchValue: q.Get("searchValue"),
		Page:        page,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := types.Listing[types.Member]{
		Entities: make([]types.Member, 0, len(members)),
		Meta:     pageMeta(page, total),
	}
	for _, m := range members {
		resp.Entities = append(resp.Entities, types.Member{
			Id:         m.UserId,
			Username:   m.Username,
			SystemRole: m.SystemRole,
			MemberRole: m.MemberRole,
			JoinedAt:   m.JoinedAt,
		})
	}
	s.writeJson(w, http.StatusOK, resp)
}
