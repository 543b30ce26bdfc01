package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nao1215/powerboard/internal/model"
)

// DomainStore は通知の受信者や期限を決めるためのドメイン状態を読み書きする。
// プロジェクトやタスクのCRUD本体は別サービスが持つため、ここでは通知に必要な範囲のみ扱う。
type DomainStore struct {
	db *sqlx.DB
}

// NewDomainStore は新しいDomainStoreを生成する。
func NewDomainStore(db *sqlx.DB) *DomainStore {
	return &DomainStore{db: db}
}

// UserByID は内部IDでユーザーを取得する。
func (s *DomainStore) UserByID(ctx context.Context, id int64) (model.User, error) {
	return s.getUser(ctx, `SELECT id, auth_id, username FROM users WHERE id = ?`, id)
}

// UserByAuthID は外部識別子でユーザーを取得する。
func (s *DomainStore) UserByAuthID(ctx context.Context, authID string) (model.User, error) {
	return s.getUser(ctx, `SELECT id, auth_id, username FROM users WHERE auth_id = ?`, authID)
}

func (s *DomainStore) getUser(ctx context.Context, query string, arg any) (model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}

// TaskByID はタスクを取得する。
func (s *DomainStore) TaskByID(ctx context.Context, id int64) (model.Task, error) {
	var t model.Task
	query := s.db.Rebind(`
		SELECT id, title, status, project_id, reporter_id, assignee_id, due_date
		FROM tasks WHERE id = ?
	`)
	if err := s.db.GetContext(ctx, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("タスクの取得に失敗: %w", err)
	}
	return t, nil
}

// ProjectByID はプロジェクトを取得する。
func (s *DomainStore) ProjectByID(ctx context.Context, id int64) (model.Project, error) {
	var p model.Project
	query := s.db.Rebind(`SELECT id, title, status, due_date, owner_id FROM projects WHERE id = ?`)
	if err := s.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Project{}, ErrNotFound
		}
		return model.Project{}, fmt.Errorf("プロジェクトの取得に失敗: %w", err)
	}
	return p, nil
}

// OverdueTasks は期限がnowより前で、完了していないタスクを返す。
func (s *DomainStore) OverdueTasks(ctx context.Context, now time.Time) ([]model.Task, error) {
	query := s.db.Rebind(`
		SELECT id, title, status, project_id, reporter_id, assignee_id, due_date
		FROM tasks
		WHERE due_date IS NOT NULL AND due_date < ? AND status <> ?
		ORDER BY id
	`)
	tasks := []model.Task{}
	if err := s.db.SelectContext(ctx, &tasks, query, now.UTC(), model.TaskStatusDone); err != nil {
		return nil, fmt.Errorf("期限切れタスクの取得に失敗: %w", err)
	}
	return tasks, nil
}

// ProjectsDueWithin は期限が (from, to] に収まり、完了していないプロジェクトを返す。
func (s *DomainStore) ProjectsDueWithin(ctx context.Context, from, to time.Time) ([]model.Project, error) {
	query := s.db.Rebind(`
		SELECT id, title, status, due_date, owner_id
		FROM projects
		WHERE due_date IS NOT NULL AND due_date > ? AND due_date <= ? AND status <> ?
		ORDER BY id
	`)
	projects := []model.Project{}
	if err := s.db.SelectContext(ctx, &projects, query, from.UTC(), to.UTC(), model.ProjectStatusDone); err != nil {
		return nil, fmt.Errorf("期限間近プロジェクトの取得に失敗: %w", err)
	}
	return projects, nil
}

// ProjectRecipients はプロジェクトの全メンバーと所有者を重複なく返す。
func (s *DomainStore) ProjectRecipients(ctx context.Context, project model.Project) ([]model.User, error) {
	query := s.db.Rebind(`
		SELECT u.id, u.auth_id, u.username
		FROM users u
		WHERE u.id IN (SELECT m.user_id FROM project_members m WHERE m.project_id = ?)
		   OR u.id = ?
		ORDER BY u.id
	`)
	users := []model.User{}
	if err := s.db.SelectContext(ctx, &users, query, project.ID, project.OwnerID); err != nil {
		return nil, fmt.Errorf("プロジェクト受信者の取得に失敗: %w", err)
	}
	return users, nil
}

// CreateUser はユーザーを追加する。
func (s *DomainStore) CreateUser(ctx context.Context, authID, username string) (model.User, error) {
	id, err := s.insert(ctx, `INSERT INTO users (auth_id, username) VALUES (?, ?)`, authID, username)
	if err != nil {
		return model.User{}, fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return model.User{ID: id, AuthID: authID, Username: username}, nil
}

// CreateProject はプロジェクトを追加する。
func (s *DomainStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.Status == "" {
		p.Status = model.ProjectStatusInProgress
	}
	id, err := s.insert(ctx,
		`INSERT INTO projects (title, status, due_date, owner_id) VALUES (?, ?, ?, ?)`,
		p.Title, p.Status, utcNullTime(p.DueDate), p.OwnerID)
	if err != nil {
		return model.Project{}, fmt.Errorf("プロジェクトの作成に失敗: %w", err)
	}
	p.ID = id
	return p, nil
}

// AddMember はプロジェクトにメンバーを追加する。
func (s *DomainStore) AddMember(ctx context.Context, projectID, userID int64, role model.ProjectRole) error {
	query := s.db.Rebind(`INSERT INTO project_members (project_id, user_id, role) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, projectID, userID, role); err != nil {
		return fmt.Errorf("メンバーの追加に失敗: %w", err)
	}
	return nil
}

// CreateTask はタスクを追加する。
func (s *DomainStore) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if t.Status == "" {
		t.Status = model.TaskStatusTodo
	}
	id, err := s.insert(ctx,
		`INSERT INTO tasks (title, status, project_id, reporter_id, assignee_id, due_date) VALUES (?, ?, ?, ?, ?, ?)`,
		t.Title, t.Status, t.ProjectID, t.ReporterID, t.AssigneeID, utcNullTime(t.DueDate))
	if err != nil {
		return model.Task{}, fmt.Errorf("タスクの作成に失敗: %w", err)
	}
	t.ID = id
	return t, nil
}

// UpdateTaskStatus はタスクの状態を更新する。
func (s *DomainStore) UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus) error {
	query := s.db.Rebind(`UPDATE tasks SET status = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("タスク状態の更新に失敗: %w", err)
	}
	return nil
}

// insert は行を追加して採番されたIDを返す。
// lib/pqはLastInsertIdを返さないため、PostgreSQLではRETURNINGを使う。
func (s *DomainStore) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.db.DriverName() == "postgres" {
		var id int64
		err := s.db.QueryRowxContext(ctx, s.db.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// utcNullTime は有効な時刻をUTCに揃える。SQLiteでは文字列比較になるため必須。
func utcNullTime(t sql.NullTime) sql.NullTime {
	if t.Valid {
		t.Time = t.Time.UTC()
	}
	return t
}
