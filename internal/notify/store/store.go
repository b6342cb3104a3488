package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/notify"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectColumns = `id, kind, title, content, payload, created_at, read`

func scanNotification(s scanner) (*notify.Notification, error) {
	var (
		n         notify.Notification
		kind      string
		payload   string
		createdAt string
	)

	if err := s.Scan(&n.ID, &kind, &n.Title, &n.Content, &payload, &createdAt, &n.Read); err != nil {
		return nil, err
	}

	n.Kind = notify.Kind(kind)
	n.Payload = []byte(payload)

	t, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}

	n.CreatedAt = t

	return &n, nil
}

func (s *Store) InsertNotification(ctx context.Context, n *notify.Notification) error {
	query := `INSERT INTO notifications (` + selectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.Kind, n.Title, n.Content, string(n.Payload), database.FormatTime(n.CreatedAt), n.Read,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}

	return nil
}

// ListNotifications returns notifications newest first.
func (s *Store) ListNotifications(ctx context.Context, opts notify.ListOptions) ([]*notify.Notification, error) {
	var (
		where []string
		args  []any
	)

	if opts.UnreadOnly {
		where = append(where, "read = 0")
	}

	if opts.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, *opts.Kind)
	}

	query := `SELECT ` + selectColumns + ` FROM notifications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY created_at DESC, id"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	list := []*notify.Notification{}

	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}

		list = append(list, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	return list, nil
}

func (s *Store) MarkAsRead(ctx context.Context, id uuid.UUID) (*notify.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("marking notification read: %w", err)
	}

	n, err := scanNotification(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM notifications WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notify.ErrNotFound
		}

		return nil, fmt.Errorf("getting notification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return n, nil
}

// MarkAllAsRead flags every unread notification and returns the ones it changed.
func (s *Store) MarkAllAsRead(ctx context.Context) ([]*notify.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+selectColumns+` FROM notifications WHERE read = 0 ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing unread notifications: %w", err)
	}

	var updated []*notify.Notification

	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning notification: %w", err)
		}

		n.Read = true
		updated = append(updated, n)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing unread notifications: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE read = 0`); err != nil {
		return nil, fmt.Errorf("marking notifications read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return updated, nil
}

func (s *Store) ClearNotifications(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications`); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}

	return nil
}
