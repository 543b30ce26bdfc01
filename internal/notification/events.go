package notification

import (
	"context"
	"fmt"

	"github.com/nao1215/powerboard/internal/model"
)

// 通知本文はフロントエンドがそのまま表示するため、引用符も含めて固定の書式を使う。

// TaskAssignedMessage はタスク割り当て通知の本文を返す。
func TaskAssignedMessage(task model.Task) string {
	return fmt.Sprintf("You were assigned a new task: “%s”", task.Title)
}

// CommentAddedMessage はコメント追加通知の本文を返す。
func CommentAddedMessage(task model.Task, commenter model.User) string {
	return fmt.Sprintf("New comment on task “%s” by %s", task.Title, commenter.Username)
}

// StatusChangedMessage はタスク状態変更通知の本文を返す。
func StatusChangedMessage(task model.Task, oldStatus model.TaskStatus) string {
	return fmt.Sprintf("Your task “%s” status changed from %s to %s", task.Title, oldStatus, task.Status)
}

// DueSoonMessage は期限間近リマインダーの本文を返す。重複判定のキーにもなる。
func DueSoonMessage(project model.Project) string {
	return fmt.Sprintf("Reminder: project “%s” is due soon", project.Title)
}

// OverdueMessage は期限切れ通知の本文を返す。
func OverdueMessage(task model.Task) string {
	return fmt.Sprintf("Your task “%s” is overdue!", task.Title)
}

// AddedToProjectMessage はプロジェクト追加通知の本文を返す。
func AddedToProjectMessage(project model.Project, by model.User) string {
	return fmt.Sprintf("You were added to project “%s” by %s", project.Title, by.Username)
}

// AddedToBigTaskMessage はビッグタスク追加通知の本文を返す。
func AddedToBigTaskMessage(bigTask model.BigTask) string {
	return fmt.Sprintf("You were added to big task “%s”", bigTask.Title)
}

// RemovedFromProjectMessage はプロジェクト除名通知の本文を返す。
func RemovedFromProjectMessage(project model.Project) string {
	return fmt.Sprintf("You have been removed from project “%s”", project.Title)
}

// RemovedFromBigTaskMessage はビッグタスク除名通知の本文を返す。
func RemovedFromBigTaskMessage(bigTask model.BigTask) string {
	return fmt.Sprintf("You have been removed from big task “%s”", bigTask.Title)
}

// PromotedRoleMessage は管理者権限付与通知の本文を返す。
func PromotedRoleMessage(project model.Project) string {
	return fmt.Sprintf("You have been granted admin role in “%s”", project.Title)
}

// TaskAssigned は担当者にタスク割り当てを通知する。
func (n *Notifier) TaskAssigned(ctx context.Context, task model.Task, assignee model.User) error {
	return n.Notify(ctx, assignee, TaskAssignedMessage(task))
}

// CommentAdded は報告者と担当者のうちコメント投稿者以外に通知する。
func (n *Notifier) CommentAdded(ctx context.Context, task model.Task, commenter model.User) error {
	targets := []int64{task.ReporterID}
	if task.AssigneeID.Valid && task.AssigneeID.Int64 != task.ReporterID {
		targets = append(targets, task.AssigneeID.Int64)
	}

	message := CommentAddedMessage(task, commenter)
	for _, id := range targets {
		if id == commenter.ID {
			continue
		}
		if err := n.notifyUserID(ctx, id, message); err != nil {
			return err
		}
	}
	return nil
}

// TaskStatusChanged は担当者に状態変更を通知する。担当者がいなければ何もしない。
// taskは変更後の状態を持っている必要がある。
func (n *Notifier) TaskStatusChanged(ctx context.Context, task model.Task, oldStatus model.TaskStatus) error {
	if !task.AssigneeID.Valid {
		return nil
	}
	return n.notifyUserID(ctx, task.AssigneeID.Int64, StatusChangedMessage(task, oldStatus))
}

// AddedToProject は追加されたユーザーに通知する。
func (n *Notifier) AddedToProject(ctx context.Context, project model.Project, added, by model.User) error {
	return n.Notify(ctx, added, AddedToProjectMessage(project, by))
}

// AddedToBigTask は追加されたユーザーに通知する。
func (n *Notifier) AddedToBigTask(ctx context.Context, bigTask model.BigTask, added model.User) error {
	return n.Notify(ctx, added, AddedToBigTaskMessage(bigTask))
}

// RemovedFromProject は除名されたユーザーに通知する。
func (n *Notifier) RemovedFromProject(ctx context.Context, project model.Project, user model.User) error {
	return n.Notify(ctx, user, RemovedFromProjectMessage(project))
}

// RemovedFromBigTask は除名されたユーザーに通知する。
func (n *Notifier) RemovedFromBigTask(ctx context.Context, bigTask model.BigTask, user model.User) error {
	return n.Notify(ctx, user, RemovedFromBigTaskMessage(bigTask))
}

// PromotedRole は管理者権限を付与されたユーザーに通知する。
func (n *Notifier) PromotedRole(ctx context.Context, project model.Project, user model.User) error {
	return n.Notify(ctx, user, PromotedRoleMessage(project))
}

// ProjectDueSoon はプロジェクトの全メンバーと所有者にリマインダーを送り、作成件数を返す。
// 同じ本文の通知を既に持つ受信者には送らない。判定に期間の制限はない。
func (n *Notifier) ProjectDueSoon(ctx context.Context, project model.Project) (int, error) {
	recipients, err := n.domain.ProjectRecipients(ctx, project)
	if err != nil {
		return 0, err
	}

	message := DueSoonMessage(project)
	sent := 0
	for _, user := range recipients {
		exists, err := n.notes.HasMessage(ctx, user.ID, message)
		if err != nil {
			return sent, err
		}
		if exists {
			continue
		}
		if err := n.Notify(ctx, user, message); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// TaskOverdue は担当者に期限切れを通知する。呼ばれるたびに通知を作成する。
// 担当者がいなければ何もせずfalseを返す。
func (n *Notifier) TaskOverdue(ctx context.Context, task model.Task) (bool, error) {
	if !task.AssigneeID.Valid {
		return false, nil
	}
	if err := n.notifyUserID(ctx, task.AssigneeID.Int64, OverdueMessage(task)); err != nil {
		return false, err
	}
	return true, nil
}
