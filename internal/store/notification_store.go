// Package store は通知レコードとドメイン状態への永続化アクセスを提供する。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nao1215/powerboard/internal/model"
)

// ErrNotFound は対象のレコードが存在しないことを表す。
var ErrNotFound = errors.New("store: レコードが見つかりません")

// NotificationStore は通知レコードの追記・一覧・既読化を行う。
type NotificationStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewNotificationStore は新しいNotificationStoreを生成する。
func NewNotificationStore(db *sqlx.DB) *NotificationStore {
	return &NotificationStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create は未読の通知レコードを1件追加してコミットする。
// 呼び出しが戻った時点で書き込みは永続化されている。
func (s *NotificationStore) Create(ctx context.Context, userID int64, message string) (model.Notification, error) {
	n := model.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   message,
		Read:      false,
		CreatedAt: s.now(),
	}

	query := s.db.Rebind(`
		INSERT INTO notifications (id, user_id, message, is_read, created_at)
		VALUES (?, ?, ?, FALSE, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query, n.ID, n.UserID, n.Message, n.CreatedAt); err != nil {
		return model.Notification{}, fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return n, nil
}

// Get は通知をIDで取得する。
func (s *NotificationStore) Get(ctx context.Context, id string) (model.Notification, error) {
	var n model.Notification
	query := s.db.Rebind(`SELECT id, user_id, message, is_read, created_at FROM notifications WHERE id = ?`)
	if err := s.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Notification{}, ErrNotFound
		}
		return model.Notification{}, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return n, nil
}

// List はユーザーの通知を新しい順に返す。unreadOnlyがtrueなら未読のみ。
func (s *NotificationStore) List(ctx context.Context, userID int64, unreadOnly bool) ([]model.Notification, error) {
	query := `SELECT id, user_id, message, is_read, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	notifications := []model.Notification{}
	if err := s.db.SelectContext(ctx, &notifications, s.db.Rebind(query), userID); err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// MarkRead は通知を既読にする。既に既読でも成功する。
// userIDの所有でない、または存在しない通知はErrNotFoundになる。
func (s *NotificationStore) MarkRead(ctx context.Context, id string, userID int64) error {
	query := s.db.Rebind(`UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ?`)
	res, err := s.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("通知の既読処理に失敗: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	query := s.db.Rebind(`UPDATE notifications SET is_read = TRUE WHERE user_id = ? AND is_read = FALSE`)
	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("全通知の既読処理に失敗: %w", err)
	}
	return res.RowsAffected()
}

// MarkReadByIDs は指定された通知をまとめて既読にする。
func (s *NotificationStore) MarkReadByIDs(ctx context.Context, userID int64, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE notifications SET is_read = TRUE WHERE user_id = ? AND id IN (?)`, userID, ids)
	if err != nil {
		return fmt.Errorf("クエリの組み立てに失敗: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("通知の一括既読処理に失敗: %w", err)
	}
	return nil
}

// HasMessage はユーザーが同一本文の通知を既に持っているかを返す。
// 期間の制限はなく、過去に一度でも作成されていればtrueになる。
func (s *NotificationStore) HasMessage(ctx context.Context, userID int64, message string) (bool, error) {
	var exists int
	query := s.db.Rebind(`SELECT 1 FROM notifications WHERE user_id = ? AND message = ? LIMIT 1`)
	err := s.db.GetContext(ctx, &exists, query, userID, message)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("既存通知の確認に失敗: %w", err)
	}
	return true, nil
}
