// Package model は通知パイプラインで扱うドメインモデルを定義する。
package model

import (
	"database/sql"
	"time"
)

// TaskStatus はタスクの進行状態を表す。
type TaskStatus string

const (
	// TaskStatusTodo は未着手のタスクを表す。
	TaskStatusTodo TaskStatus = "To Do"
	// TaskStatusInProgress は作業中のタスクを表す。
	TaskStatusInProgress TaskStatus = "In Progress"
	// TaskStatusReview はレビュー中のタスクを表す。
	TaskStatusReview TaskStatus = "Review"
	// TaskStatusDone は完了したタスクを表す。終端状態。
	TaskStatusDone TaskStatus = "Done"
)

// ProjectStatus はプロジェクトの進行状態を表す。
type ProjectStatus string

const (
	// ProjectStatusInProgress は進行中のプロジェクトを表す。
	ProjectStatusInProgress ProjectStatus = "In Progress"
	// ProjectStatusDone は完了したプロジェクトを表す。終端状態。
	ProjectStatusDone ProjectStatus = "Done"
)

// ProjectRole はプロジェクトメンバーの役割を表す。
type ProjectRole string

const (
	// ProjectRoleOwner はプロジェクトの所有者。
	ProjectRoleOwner ProjectRole = "owner"
	// ProjectRoleEditor は編集権限を持つメンバー。
	ProjectRoleEditor ProjectRole = "editor"
	// ProjectRoleViewer は閲覧のみ可能なメンバー。
	ProjectRoleViewer ProjectRole = "viewer"
)

// User は通知の受信者となるユーザー。
type User struct {
	// ID は内部の行ID。通知レコードの外部キーとして使う。
	ID int64 `db:"id" json:"id"`
	// AuthID は認証基盤が発行する安定した外部識別子。
	// 配信クライアントとゲートウェイの間ではこの値で受信者を指定する。
	AuthID string `db:"auth_id" json:"auth_id"`
	// Username は表示用のユーザー名。
	Username string `db:"username" json:"username"`
}

// Project は期限付きのプロジェクト。
type Project struct {
	ID      int64         `db:"id" json:"id"`
	Title   string        `db:"title" json:"title"`
	Status  ProjectStatus `db:"status" json:"status"`
	DueDate sql.NullTime  `db:"due_date" json:"-"`
	OwnerID int64         `db:"owner_id" json:"owner_id"`
}

// BigTask は複数のタスクを束ねるエピック。
type BigTask struct {
	ID        int64  `db:"id" json:"id"`
	Title     string `db:"title" json:"title"`
	ProjectID int64  `db:"project_id" json:"project_id"`
}

// Task はプロジェクト内の作業単位。
type Task struct {
	ID         int64         `db:"id" json:"id"`
	Title      string        `db:"title" json:"title"`
	Status     TaskStatus    `db:"status" json:"status"`
	ProjectID  int64         `db:"project_id" json:"project_id"`
	ReporterID int64         `db:"reporter_id" json:"reporter_id"`
	AssigneeID sql.NullInt64 `db:"assignee_id" json:"-"`
	DueDate    sql.NullTime  `db:"due_date" json:"-"`
}

// Notification はユーザーに届けられた通知の永続レコード。
// 作成後に変更されるのは既読フラグのみ。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `db:"id" json:"id"`
	// UserID は受信者の内部ユーザーID。
	UserID int64 `db:"user_id" json:"user_id"`
	// Message は通知本文。
	Message string `db:"message" json:"message"`
	// Read は既読状態。作成時はfalse。
	Read bool `db:"is_read" json:"read"`
	// CreatedAt は通知の作成日時（UTC）。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
