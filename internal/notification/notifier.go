package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nao1215/powerboard/internal/model"
	"github.com/nao1215/powerboard/internal/store"
	"github.com/nao1215/powerboard/pkg/event"
)

// Deliverer は通知ペイロードを受信者のライブ接続へ届ける。
// 実装は呼び出し元をブロックしてはならず、配信の失敗を返してはならない。
type Deliverer interface {
	Deliver(recipient string, payload event.Payload)
}

// Notifier は通知の保存と配信をまとめて行う。
type Notifier struct {
	notes     *store.NotificationStore
	domain    *store.DomainStore
	deliverer Deliverer
	logger    zerolog.Logger
}

// NewNotifier は新しいNotifierを生成する。
func NewNotifier(notes *store.NotificationStore, domain *store.DomainStore, deliverer Deliverer, logger zerolog.Logger) *Notifier {
	return &Notifier{
		notes:     notes,
		domain:    domain,
		deliverer: deliverer,
		logger:    logger,
	}
}

// Notify は未読の通知を保存し、コミット後にゲートウェイへの配信を依頼する。
// 保存に失敗した場合はエラーを返し、配信は行わない。
// 配信の成否は呼び出し元に伝わらない。
func (n *Notifier) Notify(ctx context.Context, user model.User, message string) error {
	note, err := n.notes.Create(ctx, user.ID, message)
	if err != nil {
		return fmt.Errorf("ユーザー%dへの通知に失敗: %w", user.ID, err)
	}

	n.logger.Debug().
		Str("notification_id", note.ID).
		Str("recipient", user.AuthID).
		Msg("通知を保存しました")

	n.deliverer.Deliver(user.AuthID, event.NewNotification(message))
	return nil
}

// notifyUserID は内部IDのユーザーを引いてから通知する。
func (n *Notifier) notifyUserID(ctx context.Context, userID int64, message string) error {
	user, err := n.domain.UserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("通知先ユーザー%dの取得に失敗: %w", userID, err)
	}
	return n.Notify(ctx, user, message)
}
