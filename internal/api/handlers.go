package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-notify/internal/apperr"
	"github.com/npezzotti/go-notify/internal/database"
	"github.com/npezzotti/go-notify/internal/delta"
	"github.com/npezzotti/go-notify/internal/projection"
	"github.com/npezzotti/go-notify/internal/server"
	"github.com/npezzotti/go-notify/internal/sms"
	"github.com/npezzotti/go-notify/internal/stats"
	"github.com/npezzotti/go-notify/internal/types"
)

const (
	ackNoopMessage    = "messageId does not exist"
	ackUpdatedMessage = "Last message visited updated successfully"
)

type ChannelRequest struct {
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ChannelPatchRequest leaves fields that are absent from the body unchanged.
type ChannelPatchRequest struct {
	Identifier  *string `json:"identifier"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type MessageRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	// BodyRaw is the plain text used for SMS. Both spellings are accepted.
	BodyRaw    string `json:"body_raw"`
	DerBodyRaw string `json:"der_bodyRaw"`
	SmsEnabled bool   `json:"sms_enabled"`
}

type MessagePatchRequest struct {
	Title      *string `json:"title"`
	Body       *string `json:"body"`
	BodyRaw    *string `json:"body_raw"`
	DerBodyRaw *string `json:"der_bodyRaw"`
	SmsEnabled bool    `json:"sms_enabled"`
}

type MembersRequest struct {
	UserIds []int `json:"user_ids"`
}

type MembersResponse struct {
	UserIds []int `json:"user_ids"`
}

type LastMessageVisitedRequest struct {
	MessageId int64 `json:"messageId"`
}

func (s *GoNotifyApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoNotifyApp) writeError(w http.ResponseWriter, err error) {
	errResp := toApiError(err)

	if apperr.Is(err, apperr.KindAborted) {
		s.incr(stats.TxAborted)
		if sms.IsDeliveryError(err) || errors.Is(err, sms.ErrNoRecipients) {
			s.incr(stats.SmsDispatchFailed)
		}
	}
	if errResp.StatusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Printf("request failed: %v", err)
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *GoNotifyApp) incr(name string) {
	if s.stats != nil {
		s.stats.Incr(name)
	}
}

// publish pushes a sync hint for a committed change. Delivery is best effort.
func (s *GoNotifyApp) publish(ctx context.Context, change projection.Change) {
	if s.hints == nil || len(change.UserIds) == 0 {
		return
	}

	hint := types.SyncHint{
		ChannelId: change.ChannelId,
		Reason:    change.Reason,
		UserIds:   change.UserIds,
	}
	if err := s.hints.Publish(ctx, hint); err != nil {
		s.log.Printf("publish %s hint for channel %d: %v", change.Reason, change.ChannelId, err)
	}
}

func decodeJson(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewBadRequestError()
	}
	return nil
}

func canManage(account database.Account, channel database.Channel) bool {
	return account.Id == channel.OwnerId || account.SystemRole == database.SystemRoleRootAdmin
}

func canCreateChannels(account database.Account) bool {
	return account.SystemRole == database.SystemRoleRootAdmin || account.SystemRole == database.SystemRoleChannelAdmin
}

// channelFromPath resolves {channelId} by numeric id, falling back to the
// case-insensitive identifier.
func (s *GoNotifyApp) channelFromPath(r *http.Request) (database.Channel, error) {
	raw := r.PathValue("channelId")
	if id, err := strconv.Atoi(raw); err == nil {
		if id <= 0 {
			return database.Channel{}, apperr.NotFound("channel not found")
		}
		return s.db.GetChannelById(r.Context(), id)
	}
	if raw == "" {
		return database.Channel{}, apperr.NotFound("channel not found")
	}
	return s.db.GetChannelByIdentifier(r.Context(), raw)
}

func (s *GoNotifyApp) messageFromPath(r *http.Request, channel database.Channel) (database.Message, error) {
	id, err := strconv.ParseInt(r.PathValue("messageId"), 10, 64)
	if err != nil || id <= 0 {
		return database.Message{}, apperr.NotFound("message not found")
	}

	msg, err := s.db.GetMessage(r.Context(), id)
	if err != nil {
		return database.Message{}, err
	}
	if msg.ChannelId != channel.Id {
		return database.Message{}, apperr.NotFound("message not found")
	}
	return msg, nil
}

func (s *GoNotifyApp) requireMembership(ctx context.Context, account database.Account, channel database.Channel) error {
	_, err := s.db.GetMembership(ctx, account.Id, channel.Id)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Forbidden("not a member of the channel")
	}
	return err
}

// managedChannel loads the channel in the path and checks the caller may
// modify it.
func (s *GoNotifyApp) managedChannel(r *http.Request) (database.Account, database.Channel, error) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		return database.Account{}, database.Channel{}, NewUnauthorizedError()
	}

	channel, err := s.channelFromPath(r)
	if err != nil {
		return database.Account{}, database.Channel{}, err
	}
	if !canManage(account, channel) {
		return database.Account{}, database.Channel{}, apperr.Forbidden("not the channel owner")
	}
	return account, channel, nil
}

// memberChannel loads the channel in the path and checks the caller belongs
// to it.
func (s *GoNotifyApp) memberChannel(r *http.Request) (database.Account, database.Channel, error) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		return database.Account{}, database.Channel{}, NewUnauthorizedError()
	}

	channel, err := s.channelFromPath(r)
	if err != nil {
		return database.Account{}, database.Channel{}, err
	}
	if err := s.requireMembership(r.Context(), account, channel); err != nil {
		return database.Account{}, database.Channel{}, err
	}
	return account, channel, nil
}

func (s *GoNotifyApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoNotifyApp) sync(w http.ResponseWriter, r *http.Request) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	q := r.URL.Query()
	params, err := delta.ParseSyncParams(q.Get("lastSyncTimestamp"), q.Get("membershipCount"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp, err := s.syncer.Sync(r.Context(), account.Id, params)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.incr(stats.SyncRequests)
	if resp.ShouldResetCurrentData {
		s.incr(stats.FullSyncs)
	}
	if resp.Channels.IsAnyMembershipDeleted {
		s.incr(stats.DeletionsDetected)
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *GoNotifyApp) syncMessages(w http.ResponseWriter, r *http.Request) {
	_, channel, err := s.memberChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	q := r.URL.Query()
	cursor, err := delta.ParseCursor(q.Get("after"), q.Get("before"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	page, err := s.syncer.Messages(r.Context(), channel.Id, cursor)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.incr(stats.MessagePages)
	s.writeJson(w, http.StatusOK, page)
}

func (s *GoNotifyApp) lastMessageVisited(w http.ResponseWriter, r *http.Request) {
	account, channel, err := s.memberChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req LastMessageVisitedRequest
	if err := decodeJson(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.MessageId <= 0 {
		s.writeError(w, apperr.Validation("messageId", "messageId is required"))
		return
	}

	result, err := s.syncer.AckLastMessageVisited(r.Context(), account.Id, channel.Id, req.MessageId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.incr(stats.ReadAcks)
	if !result.Found {
		s.writeJson(w, http.StatusOK, types.StatusMessage{Message: ackNoopMessage})
		return
	}

	// other sessions of the same user refresh their unread counters
	if result.Advanced {
		s.publish(r.Context(), projection.Change{
			ChannelId: channel.Id,
			Reason:    types.ReasonMembership,
			UserIds:   []int{account.Id},
		})
	}

	s.writeJson(w, http.StatusOK, types.StatusMessage{Message: ackUpdatedMessage})
}

func (s *GoNotifyApp) createChannel(w http.ResponseWriter, r *http.Request) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}
	if !canCreateChannels(account) {
		s.writeError(w, NewForbiddenError())
		return
	}

	var req ChannelRequest
	if err := decodeJson(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	channel, err := s.maintainer.CreateChannel(r.Context(), account, projection.ChannelInput{
		Identifier:  req.Identifier,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.incr(stats.ChannelsCreated)
	s.writeJson(w, http.StatusCreated, delta.ToChannel(channel))
}

func (s *GoNotifyApp) getChannel(w http.ResponseWriter, r *http.Request) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	channel, err := s.channelFromPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !canManage(account, channel) {
		if err := s.requireMembership(r.Context(), account, channel); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.writeJson(w, http.StatusOK, delta.ToChannel(channel))
}

func (s *GoNotifyApp) editChannel(w http.ResponseWriter, r *http.Request) {
	_, channel, err := s.managedChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req ChannelPatchRequest
	if err := decodeJson(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	in := projection.ChannelInput{
		Identifier:  channel.Identifier,
		Title:       channel.Title,
		Description: channel.Description,
	}
	if req.Identifier != nil {
		in.Identifier = *req.Identifier
	}
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Description != nil {
		in.Description = *req.Description
	}

	updated, change, err := s.maintainer.EditChannel(r.Context(), channel, in)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(r.Context(), change)
	s.writeJson(w, http.StatusOK, delta.ToChannel(updated))
}

func (s *GoNotifyApp) deleteChannel(w http.ResponseWriter, r *http.Request) {
	_, channel, err := s.managedChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	change, err := s.maintainer.DeleteChannel(r.Context(), channel)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.incr(stats.ChannelsDeleted)
	s.publish(r.Context(), change)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoNotifyApp) createMessage(w http.ResponseWriter, r *http.Request) {
	account, channel, err := s.managedChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req MessageRequest
	if err := decodeJson(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	bodyRaw := req.BodyRaw
	if bodyRaw == "" {
		bodyRaw = req.DerBodyRaw
	}

	msg, change, err := s.maintainer.CreateMessage(r.Context(), channel, account, projection.MessageInput{
		Title:      req.Title,
		Body:       req.Body,
		BodyRaw:    bodyRaw,
		SmsEnabled: req.SmsEnabled,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.incr(stats.MessagesCreated)
	s.publish(r.Context(), change)
	s.writeJson(w, http.StatusCreated, delta.ToMessage(msg))
}

func (s *GoNotifyApp) editMessage(w http.ResponseWriter, r *http.Request) {
	_, channel, err := s.managedChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.messageFromPath(r, channel)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req MessagePatchRequest
	if err := decodeJson(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	in := projection.MessageInput{
		Title:      msg.Title,
		Body:       msg.Body,
		BodyRaw:    msg.BodyRaw,
		SmsEnabled: req.SmsEnabled,
	}
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Body != nil {
		in.Body = *req.Body
	}
	if req.BodyRaw != nil {
		in.BodyRaw = *req.BodyRaw
	} else if req.DerBodyRaw != nil {
		in.BodyRaw = *req.DerBodyRaw
	}

	updated, change, err := s.maintainer.EditMessage(r.Context(), channel, msg, in)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.incr(stats.MessagesEdited)
	s.publish(r.Context(), change)
	s.writeJson(w, http.StatusOK, delta.ToMessage(updated))
}

func (s *GoNotifyApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	_, channel, err := s.managedChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.messageFromPath(r, channel)
	if err != nil {
		s.writeError(w, err)
		return
	}

	change, err := s.maintainer.DeleteMessage(r.Context(), channel, msg)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.incr(stats.MessagesDeleted)
	s.publish(r.Context(), change)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoNotifyApp) addMembers(w http.ResponseWriter, r *http.Request) {
	s.changeMembers(w, r, s.maintainer.AddMembers, http.StatusCreated)
}

func (s *GoNotifyApp) removeMembers(w http.ResponseWriter, r *http.Request) {
	s.changeMembers(w, r, s.maintainer.RemoveMembers, http.StatusOK)
}

type membershipOp func(ctx context.Context, channel database.Channel, userIds []int) (projection.Change, error)

func (s *GoNotifyApp) changeMembers(w http.ResponseWriter, r *http.Request, op membershipOp, status int) {
	_, channel, err := s.managedChannel(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req MembersRequest
	if err := decodeJson(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	change, err := op(r.Context(), channel, req.UserIds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(r.Context(), change)

	resp := MembersResponse{UserIds: change.UserIds}
	if resp.UserIds == nil {
		resp.UserIds = []int{}
	}
	s.writeJson(w, status, resp)
}

func (s *GoNotifyApp) serveWs(w http.ResponseWriter, r *http.Request) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}
	if s.hub == nil {
		s.writeError(w, NewServiceUnavailableError(errors.New("sync hints disabled")))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(types.User{
		Id:          account.Id,
		Username:    account.Username,
		PhoneNumber: account.PhoneNumber,
		SystemRole:  account.SystemRole,
	}, conn, s.hub, s.log)

	s.hub.RegisterClient(client)
	go client.Write()
	go client.Read()
}
