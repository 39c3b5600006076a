package database

import (
	"context"
	"fmt"
	"strings"
)

// likeEscaper makes a search value match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(v string) string {
	return "%" + likeEscaper.Replace(v) + "%"
}

// listQuery accumulates the WHERE clause shared by a listing and its count.
type listQuery struct {
	where []string
	args  []any
}

func (l *listQuery) add(cond string, arg any) {
	l.args = append(l.args, arg)
	l.where = append(l.where, fmt.Sprintf(cond, len(l.args)))
}

func (l *listQuery) clause() string {
	if len(l.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(l.where, " AND ")
}

// page appends LIMIT and OFFSET placeholders and returns the full argument list.
func (l *listQuery) page(p Page) (string, []any) {
	args := append(append([]any{}, l.args...), p.Size, p.offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func (q *pgQueries) count(ctx context.Context, query string, args ...any) (int, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	var n int
	err := q.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, translateError(err)
}

func (q *pgQueries) ListChannels(ctx context.Context, filter ChannelFilter) ([]ChannelListing, int, error) {
	var l listQuery
	if filter.OwnerId > 0 {
		l.add("c.owner_id = $%d", filter.OwnerId)
	}
	if filter.SearchValue != "" {
		switch filter.SearchField {
		case "title":
			l.add("c.title ILIKE $%d", containsPattern(filter.SearchValue))
		case "identifier":
			l.add("c.identifier ILIKE $%d", containsPattern(filter.SearchValue))
		case "owner":
			l.add("a.username ILIKE $%d", containsPattern(filter.SearchValue))
		}
	}

	from := " FROM channels AS c JOIN accounts AS a ON a.id = c.owner_id" + l.clause()
	total, err := q.count(ctx, "SELECT count(*)"+from, l.args...)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	limit, args := l.page(filter.Page)
	rows, err := q.db.QueryContext(ctx,
		"SELECT c.id, c.identifier, c.title, c.description, c.owner_id, c.created_at, c.updated_at, "+
			"a.username, a.system_role"+from+" ORDER BY c.id DESC"+limit,
		args...,
	)
	if err != nil {
		return nil, 0, translateError(err)
	}
	defer rows.Close()

	channels := make([]ChannelListing, 0, filter.Page.Size)
	for rows.Next() {
		var c ChannelListing
		err := rows.Scan(
			&c.Id,
			&c.Identifier,
			&c.Title,
			&c.Description,
			&c.OwnerId,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.Owner.Username,
			&c.Owner.SystemRole,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan row: %w", err)
		}
		c.Owner.Id = c.OwnerId
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translateError(err)
	}
	return channels, total, nil
}

func (q *pgQueries) SearchMessages(ctx context.Context, filter MessageFilter) ([]Message, int, error) {
	var l listQuery
	l.add("channel_id = $%d", filter.ChannelId)
	if filter.SearchValue != "" {
		switch filter.SearchField {
		case "title":
			l.add("title ILIKE $%d", containsPattern(filter.SearchValue))
		case "body":
			l.add("body ILIKE $%d", containsPattern(filter.SearchValue))
		}
	}

	total, err := q.count(ctx, "SELECT count(*) FROM messages"+l.clause(), l.args...)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	limit, args := l.page(filter.Page)
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages"+l.clause()+" ORDER BY id DESC"+limit,
		args...,
	)
	if err != nil {
		return nil, 0, translateError(err)
	}
	defer rows.Close()

	messages := make([]Message, 0, filter.Page.Size)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translateError(err)
	}
	return messages, total, nil
}

func (q *pgQueries) ListMembers(ctx context.Context, filter MemberFilter) ([]Member, int, error) {
	var l listQuery
	l.add("m.channel_id = $%d", filter.ChannelId)
	if filter.SearchValue != "" {
		switch filter.SearchField {
		case "username":
			l.add("a.username ILIKE $%d", containsPattern(filter.SearchValue))
		case "system_role":
			l.add("a.system_role = $%d", filter.SearchValue)
		}
	}

	from := " FROM memberships AS m JOIN accounts AS a ON a.id = m.user_id" + l.clause()
	total, err := q.count(ctx, "SELECT count(*)"+from, l.args...)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	limit, args := l.page(filter.Page)
	rows, err := q.db.QueryContext(ctx,
		"SELECT a.id, a.username, a.system_role, m.member_role, m.created_at"+from+
			" ORDER BY m.created_at DESC, a.id DESC"+limit,
		args...,
	)
	if err != nil {
		return nil, 0, translateError(err)
	}
	defer rows.Close()

	members := make([]Member, 0, filter.Page.Size)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserId, &m.Username, &m.SystemRole, &m.MemberRole, &m.JoinedAt); err != nil {
			return nil, 0, fmt.Errorf("scan row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translateError(err)
	}
	return members, total, nil
}
