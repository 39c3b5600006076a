package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/npezzotti/go-notify/internal/apperr"
)

const (
	channelColumns    = "id, identifier, title, description, owner_id, created_at, updated_at"
	messageColumns    = "id, channel_id, sent_by_user_id, title, body, body_raw, created_at, updated_at"
	membershipColumns = "user_id, channel_id, member_role, der_channel_updated_at, der_last_message, " +
		"der_last_message_read, der_num_unread_messages, der_message_collection_updated_at, created_at, updated_at"
	syncChannelColumns = "c.id, c.identifier, c.title, c.description, c.created_at, c.updated_at, " +
		"m.created_at, m.der_last_message, m.der_last_message_read, m.der_num_unread_messages"

	readPointerId = "(der_last_message_read->>'id')::bigint"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (Channel, error) {
	var c Channel
	err := row.Scan(
		&c.Id,
		&c.Identifier,
		&c.Title,
		&c.Description,
		&c.OwnerId,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		m      Message
		sentBy sql.NullInt64
	)
	err := row.Scan(
		&m.Id,
		&m.ChannelId,
		&sentBy,
		&m.Title,
		&m.Body,
		&m.BodyRaw,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if sentBy.Valid {
		id := int(sentBy.Int64)
		m.SentByUserId = &id
	}
	return m, err
}

func scanMembership(row rowScanner) (Membership, error) {
	var (
		m                   Membership
		channelUpdatedAt    sql.NullTime
		collectionUpdatedAt sql.NullTime
		last, read          snapshotColumn
	)
	err := row.Scan(
		&m.UserId,
		&m.ChannelId,
		&m.MemberRole,
		&channelUpdatedAt,
		&last,
		&read,
		&m.NumUnreadMessages,
		&collectionUpdatedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return Membership{}, err
	}

	m.LastMessage = last.snap
	m.LastMessageRead = read.snap
	if channelUpdatedAt.Valid {
		m.ChannelUpdatedAt = &channelUpdatedAt.Time
	}
	if collectionUpdatedAt.Valid {
		m.MessageCollectionUpdatedAt = &collectionUpdatedAt.Time
	}
	return m, nil
}

func scanSyncChannel(row rowScanner) (SyncChannel, error) {
	var (
		sc                                        SyncChannel
		createdAt, updatedAt, membershipCreatedAt time.Time
		last, read                                snapshotColumn
	)
	err := row.Scan(
		&sc.ChannelId,
		&sc.Identifier,
		&sc.Title,
		&sc.Description,
		&createdAt,
		&updatedAt,
		&membershipCreatedAt,
		&last,
		&read,
		&sc.NumUnreadMessages,
	)
	if err != nil {
		return SyncChannel{}, err
	}

	sc.CreatedAt = &createdAt
	sc.UpdatedAt = &updatedAt
	sc.MembershipCreatedAt = &membershipCreatedAt
	sc.LastMessage = last.snap
	sc.LastMessageRead = read.snap
	return sc, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func int64s(ids []int) pq.Int64Array {
	out := make(pq.Int64Array, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, int64(id))
	}
	return out
}

func (q *pgQueries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	res, err := q.db.ExecContext(ctx, query, args...)
	return res, translateError(err)
}

func (q *pgQueries) collectInts(ctx context.Context, query string, args ...any) ([]int, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}

func (q *pgQueries) collectSyncChannels(ctx context.Context, query string, args ...any) ([]SyncChannel, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	channels := make([]SyncChannel, 0)
	for rows.Next() {
		sc, err := scanSyncChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		channels = append(channels, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return channels, nil
}

func (q *pgQueries) GetAccountById(ctx context.Context, id int) (Account, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	row := q.db.QueryRowContext(ctx,
		"SELECT id, username, COALESCE(phone_number, ''), system_role, created_at, updated_at "+
			"FROM accounts WHERE id = $1",
		id,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.PhoneNumber,
		&a.SystemRole,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, translateError(err)
}

func (q *pgQueries) GetChannelById(ctx context.Context, id int) (Channel, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	c, err := scanChannel(q.db.QueryRowContext(ctx,
		"SELECT "+channelColumns+" FROM channels WHERE id = $1",
		id,
	))
	return c, translateError(err)
}

func (q *pgQueries) GetChannelByIdentifier(ctx context.Context, identifier string) (Channel, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	c, err := scanChannel(q.db.QueryRowContext(ctx,
		"SELECT "+channelColumns+" FROM channels WHERE identifier_lowercase = $1",
		strings.ToLower(identifier),
	))
	return c, translateError(err)
}

func (q *pgQueries) LockChannel(ctx context.Context, id int, shared bool) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	mode := "FOR UPDATE"
	if shared {
		mode = "FOR SHARE"
	}

	var locked int
	err := q.db.QueryRowContext(ctx, "SELECT id FROM channels WHERE id = $1 "+mode, id).Scan(&locked)
	return translateError(err)
}

func (q *pgQueries) CreateChannel(ctx context.Context, params CreateChannelParams) (Channel, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	c, err := scanChannel(q.db.QueryRowContext(ctx,
		"INSERT INTO channels (identifier, identifier_lowercase, title, description, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING "+channelColumns,
		params.Identifier,
		strings.ToLower(params.Identifier),
		params.Title,
		params.Description,
		params.OwnerId,
		params.CreatedAt,
	))
	return c, translateError(err)
}

func (q *pgQueries) UpdateChannel(ctx context.Context, params UpdateChannelParams) (Channel, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	c, err := scanChannel(q.db.QueryRowContext(ctx,
		"UPDATE channels SET identifier = $2, identifier_lowercase = $3, title = $4, description = $5, updated_at = $6 "+
			"WHERE id = $1 RETURNING "+channelColumns,
		params.Id,
		params.Identifier,
		strings.ToLower(params.Identifier),
		params.Title,
		params.Description,
		params.UpdatedAt,
	))
	return c, translateError(err)
}

func (q *pgQueries) DeleteChannel(ctx context.Context, id int) error {
	_, err := q.exec(ctx, "DELETE FROM channels WHERE id = $1", id)
	return err
}

func (q *pgQueries) GetMessage(ctx context.Context, id int64) (Message, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	m, err := scanMessage(q.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1",
		id,
	))
	return m, translateError(err)
}

func (q *pgQueries) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	m, err := scanMessage(q.db.QueryRowContext(ctx,
		"INSERT INTO messages (channel_id, sent_by_user_id, title, body, body_raw, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING "+messageColumns,
		params.ChannelId,
		nullableInt(params.SentByUserId),
		params.Title,
		params.Body,
		params.BodyRaw,
		params.CreatedAt,
	))
	return m, translateError(err)
}

func (q *pgQueries) UpdateMessage(ctx context.Context, params UpdateMessageParams) (Message, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	m, err := scanMessage(q.db.QueryRowContext(ctx,
		"UPDATE messages SET title = $2, body = $3, body_raw = $4, updated_at = $5 "+
			"WHERE id = $1 RETURNING "+messageColumns,
		params.Id,
		params.Title,
		params.Body,
		params.BodyRaw,
		params.UpdatedAt,
	))
	return m, translateError(err)
}

func (q *pgQueries) DeleteMessage(ctx context.Context, id int64) error {
	res, err := q.exec(ctx, "DELETE FROM messages WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("message not found")
	}
	return nil
}

func (q *pgQueries) DeleteChannelMessages(ctx context.Context, channelId int) error {
	_, err := q.exec(ctx, "DELETE FROM messages WHERE channel_id = $1", channelId)
	return err
}

func (q *pgQueries) optionalMessage(ctx context.Context, query string, args ...any) (*Message, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	m, err := scanMessage(q.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &m, nil
}

func (q *pgQueries) LastMessage(ctx context.Context, channelId int) (*Message, error) {
	return q.optionalMessage(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE channel_id = $1 ORDER BY id DESC LIMIT 1",
		channelId,
	)
}

func (q *pgQueries) PrecedingMessage(ctx context.Context, channelId int, messageId int64) (*Message, error) {
	return q.optionalMessage(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE channel_id = $1 AND id < $2 ORDER BY id DESC LIMIT 1",
		channelId,
		messageId,
	)
}

func (q *pgQueries) CountMessagesAfter(ctx context.Context, channelId int, messageId int64) (int, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT count(*) FROM messages WHERE channel_id = $1 AND id > $2",
		channelId,
		messageId,
	).Scan(&n)
	return n, translateError(err)
}

func (q *pgQueries) ListMessages(ctx context.Context, window MessageWindow) ([]Message, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	query := "SELECT " + messageColumns + " FROM messages WHERE channel_id = $1"
	args := []any{window.ChannelId}
	if window.AfterId > 0 {
		args = append(args, window.AfterId)
		query += fmt.Sprintf(" AND id > $%d", len(args))
	}
	if window.BeforeId > 0 {
		args = append(args, window.BeforeId)
		query += fmt.Sprintf(" AND id < $%d", len(args))
	}
	if window.Descending {
		query += " ORDER BY id DESC"
	} else {
		query += " ORDER BY id ASC"
	}
	args = append(args, window.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	messages := make([]Message, 0, window.Limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return messages, nil
}

func (q *pgQueries) GetMembership(ctx context.Context, userId, channelId int) (Membership, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	m, err := scanMembership(q.db.QueryRowContext(ctx,
		"SELECT "+membershipColumns+" FROM memberships WHERE user_id = $1 AND channel_id = $2",
		userId,
		channelId,
	))
	return m, translateError(err)
}

func (q *pgQueries) CreateMemberships(ctx context.Context, channelId int, userIds []int, last *MessageSnapshot, unread int, at time.Time) ([]int, error) {
	return q.collectInts(ctx,
		"INSERT INTO memberships (user_id, channel_id, member_role, der_last_message, der_num_unread_messages, created_at, updated_at) "+
			"SELECT u, $1::int, $3::text, $4::jsonb, $5::int, $6::timestamptz, $6::timestamptz FROM unnest($2::int[]) AS u "+
			"ON CONFLICT (user_id, channel_id) DO NOTHING RETURNING user_id",
		channelId,
		int64s(userIds),
		MemberRoleMember,
		last,
		unread,
		at,
	)
}

func (q *pgQueries) DeleteMemberships(ctx context.Context, channelId int, userIds []int) ([]int, error) {
	return q.collectInts(ctx,
		"DELETE FROM memberships WHERE channel_id = $1 AND user_id = ANY($2::int[]) RETURNING user_id",
		channelId,
		int64s(userIds),
	)
}

func (q *pgQueries) DeleteChannelMemberships(ctx context.Context, channelId int) error {
	_, err := q.exec(ctx, "DELETE FROM memberships WHERE channel_id = $1", channelId)
	return err
}

func (q *pgQueries) ListMemberIds(ctx context.Context, channelId int) ([]int, error) {
	return q.collectInts(ctx,
		"SELECT user_id FROM memberships WHERE channel_id = $1 ORDER BY user_id",
		channelId,
	)
}

func (q *pgQueries) ListMemberPhoneNumbers(ctx context.Context, channelId int) ([]string, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.QueryContext(ctx,
		"SELECT a.phone_number FROM memberships AS m JOIN accounts AS a ON a.id = m.user_id "+
			"WHERE m.channel_id = $1 AND COALESCE(a.phone_number, '') <> '' ORDER BY a.id",
		channelId,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	phones := make([]string, 0)
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		phones = append(phones, phone)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return phones, nil
}

func (q *pgQueries) ApplyMessageCreated(ctx context.Context, channelId int, last *MessageSnapshot, at time.Time) error {
	_, err := q.exec(ctx,
		"UPDATE memberships SET der_last_message = $2, der_message_collection_updated_at = $3, "+
			"der_num_unread_messages = der_num_unread_messages + 1, updated_at = $3 WHERE channel_id = $1",
		channelId,
		last,
		at,
	)
	return err
}

func (q *pgQueries) MarkMessageRead(ctx context.Context, userId, channelId int, read *MessageSnapshot, at time.Time) error {
	_, err := q.exec(ctx,
		"UPDATE memberships SET der_last_message_read = $3, der_num_unread_messages = 0, updated_at = $4 "+
			"WHERE user_id = $1 AND channel_id = $2",
		userId,
		channelId,
		read,
		at,
	)
	return err
}

func (q *pgQueries) SetLastMessage(ctx context.Context, channelId int, last *MessageSnapshot, at time.Time) error {
	_, err := q.exec(ctx,
		"UPDATE memberships SET der_last_message = $2, der_message_collection_updated_at = $3, updated_at = $3 "+
			"WHERE channel_id = $1",
		channelId,
		last,
		at,
	)
	return err
}

func (q *pgQueries) RefreshLastMessageRead(ctx context.Context, channelId int, read *MessageSnapshot, at time.Time) error {
	if read == nil {
		return nil
	}
	_, err := q.exec(ctx,
		"UPDATE memberships SET der_last_message_read = $2, updated_at = $3 "+
			"WHERE channel_id = $1 AND "+readPointerId+" = $4",
		channelId,
		read,
		at,
		read.Id,
	)
	return err
}

func (q *pgQueries) DecrementUnreadBefore(ctx context.Context, channelId int, deletedId int64, at time.Time) error {
	_, err := q.exec(ctx,
		"UPDATE memberships SET der_num_unread_messages = der_num_unread_messages - 1, updated_at = $3 "+
			"WHERE channel_id = $1 AND (der_last_message_read IS NULL OR "+readPointerId+" < $2)",
		channelId,
		deletedId,
		at,
	)
	return err
}

func (q *pgQueries) RewindLastMessageRead(ctx context.Context, channelId int, deletedId int64, prev *MessageSnapshot, at time.Time) error {
	_, err := q.exec(ctx,
		"UPDATE memberships SET der_last_message_read = $3, updated_at = $4 "+
			"WHERE channel_id = $1 AND "+readPointerId+" = $2",
		channelId,
		deletedId,
		prev,
		at,
	)
	return err
}

func (q *pgQueries) SetChannelUpdatedAt(ctx context.Context, channelId int, at time.Time) error {
	_, err := q.exec(ctx,
		"UPDATE memberships SET der_channel_updated_at = $2, updated_at = $2 WHERE channel_id = $1",
		channelId,
		at,
	)
	return err
}

func (q *pgQueries) AdvanceReadState(ctx context.Context, params ReadStateParams) (bool, error) {
	if params.LastMessageRead == nil {
		return false, fmt.Errorf("advance read state: nil read pointer")
	}

	res, err := q.exec(ctx,
		"UPDATE memberships SET der_last_message_read = $3, der_num_unread_messages = $4, updated_at = $5 "+
			"WHERE user_id = $1 AND channel_id = $2 AND (der_last_message_read IS NULL OR "+readPointerId+" < $6)",
		params.UserId,
		params.ChannelId,
		params.LastMessageRead,
		params.NumUnreadMessages,
		params.UpdatedAt,
		params.LastMessageRead.Id,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *pgQueries) ListSyncChannels(ctx context.Context, userId int) ([]SyncChannel, error) {
	return q.collectSyncChannels(ctx,
		"SELECT "+syncChannelColumns+" FROM memberships AS m JOIN channels AS c ON c.id = m.channel_id "+
			"WHERE m.user_id = $1 ORDER BY c.id",
		userId,
	)
}

func (q *pgQueries) ListNewOrEditedChannels(ctx context.Context, userId int, since time.Time) ([]SyncChannel, error) {
	return q.collectSyncChannels(ctx,
		"SELECT "+syncChannelColumns+" FROM memberships AS m JOIN channels AS c ON c.id = m.channel_id "+
			"WHERE m.user_id = $1 AND (m.created_at > $2 OR m.der_channel_updated_at > $2) ORDER BY c.id",
		userId,
		since,
	)
}

func (q *pgQueries) ListMessageCollectionChanges(ctx context.Context, userId int, since time.Time) ([]SyncChannel, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.QueryContext(ctx,
		"SELECT channel_id, der_last_message, der_last_message_read, der_num_unread_messages FROM memberships "+
			"WHERE user_id = $1 AND (der_message_collection_updated_at > $2 OR updated_at > $2) ORDER BY channel_id",
		userId,
		since,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	channels := make([]SyncChannel, 0)
	for rows.Next() {
		var (
			sc         SyncChannel
			last, read snapshotColumn
		)
		if err := rows.Scan(&sc.ChannelId, &last, &read, &sc.NumUnreadMessages); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sc.LastMessage = last.snap
		sc.LastMessageRead = read.snap
		channels = append(channels, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return channels, nil
}

func (q *pgQueries) CountMemberships(ctx context.Context, userId int) (int, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	var n int
	err := q.db.QueryRowContext(ctx, "SELECT count(*) FROM memberships WHERE user_id = $1", userId).Scan(&n)
	return n, translateError(err)
}

func (q *pgQueries) ListJoinedChannelIds(ctx context.Context, userId int) ([]int, error) {
	return q.collectInts(ctx,
		"SELECT channel_id FROM memberships WHERE user_id = $1 ORDER BY channel_id",
		userId,
	)
}
