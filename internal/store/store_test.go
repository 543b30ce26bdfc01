package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/powerboard/internal/database"
	"github.com/nao1215/powerboard/internal/model"
)

// setupTestDB はスキーマ適用済みのインメモリSQLiteを生成する。
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.Open(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func validTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

func TestNotificationStore_CreateAndList(t *testing.T) {
	t.Parallel()

	t.Run("作成した通知が未読で新しい順に返ること", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		domain := NewDomainStore(db)
		notes := NewNotificationStore(db)
		ctx := t.Context()

		u, err := domain.CreateUser(ctx, "auth0|u1", "u1")
		require.NoError(t, err)

		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		tick := 0
		notes.now = func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		}

		first, err := notes.Create(ctx, u.ID, "first")
		require.NoError(t, err)
		second, err := notes.Create(ctx, u.ID, "second")
		require.NoError(t, err)

		assert.NotEmpty(t, first.ID)
		assert.False(t, first.Read)

		list, err := notes.List(ctx, u.ID, false)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)
		assert.Equal(t, "second", list[0].Message)
		assert.True(t, list[0].CreatedAt.Equal(second.CreatedAt))
	})

	t.Run("他ユーザーの通知は含まれないこと", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		domain := NewDomainStore(db)
		notes := NewNotificationStore(db)
		ctx := t.Context()

		a, err := domain.CreateUser(ctx, "auth0|a", "a")
		require.NoError(t, err)
		b, err := domain.CreateUser(ctx, "auth0|b", "b")
		require.NoError(t, err)

		_, err = notes.Create(ctx, a.ID, "for a")
		require.NoError(t, err)

		list, err := notes.List(ctx, b.ID, false)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestNotificationStore_MarkRead(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	domain := NewDomainStore(db)
	notes := NewNotificationStore(db)
	ctx := t.Context()

	owner, err := domain.CreateUser(ctx, "auth0|owner", "owner")
	require.NoError(t, err)
	other, err := domain.CreateUser(ctx, "auth0|other", "other")
	require.NoError(t, err)

	n1, err := notes.Create(ctx, owner.ID, "one")
	require.NoError(t, err)
	n2, err := notes.Create(ctx, owner.ID, "two")
	require.NoError(t, err)

	t.Run("既読化は冪等であること", func(t *testing.T) {
		require.NoError(t, notes.MarkRead(ctx, n1.ID, owner.ID))
		require.NoError(t, notes.MarkRead(ctx, n1.ID, owner.ID))

		got, err := notes.Get(ctx, n1.ID)
		require.NoError(t, err)
		assert.True(t, got.Read)

		unread, err := notes.List(ctx, owner.ID, true)
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, n2.ID, unread[0].ID)
	})

	t.Run("所有者以外の既読化はErrNotFoundになること", func(t *testing.T) {
		err := notes.MarkRead(ctx, n2.ID, other.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("存在しない通知はErrNotFoundになること", func(t *testing.T) {
		_, err := notes.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("全既読化は冪等であること", func(t *testing.T) {
		affected, err := notes.MarkAllRead(ctx, owner.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, affected)

		affected, err = notes.MarkAllRead(ctx, owner.ID)
		require.NoError(t, err)
		assert.Zero(t, affected)
	})
}

func TestNotificationStore_MarkReadByIDs(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	domain := NewDomainStore(db)
	notes := NewNotificationStore(db)
	ctx := t.Context()

	u, err := domain.CreateUser(ctx, "auth0|u", "u")
	require.NoError(t, err)
	n1, err := notes.Create(ctx, u.ID, "one")
	require.NoError(t, err)
	_, err = notes.Create(ctx, u.ID, "two")
	require.NoError(t, err)

	require.NoError(t, notes.MarkReadByIDs(ctx, u.ID, nil))
	require.NoError(t, notes.MarkReadByIDs(ctx, u.ID, []string{n1.ID}))

	unread, err := notes.List(ctx, u.ID, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "two", unread[0].Message)
}

func TestNotificationStore_HasMessage(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	domain := NewDomainStore(db)
	notes := NewNotificationStore(db)
	ctx := t.Context()

	a, err := domain.CreateUser(ctx, "auth0|a", "a")
	require.NoError(t, err)
	b, err := domain.CreateUser(ctx, "auth0|b", "b")
	require.NoError(t, err)

	_, err = notes.Create(ctx, a.ID, "Reminder")
	require.NoError(t, err)

	has, err := notes.HasMessage(ctx, a.ID, "Reminder")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = notes.HasMessage(ctx, b.ID, "Reminder")
	require.NoError(t, err)
	assert.False(t, has, "受信者ごとに判定されること")

	has, err = notes.HasMessage(ctx, a.ID, "Reminder!")
	require.NoError(t, err)
	assert.False(t, has, "本文の完全一致で判定されること")
}

func TestDomainStore_OverdueTasks(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	domain := NewDomainStore(db)
	ctx := t.Context()
	now := time.Now().UTC()

	u, err := domain.CreateUser(ctx, "auth0|u", "u")
	require.NoError(t, err)
	p, err := domain.CreateProject(ctx, model.Project{Title: "P", OwnerID: u.ID})
	require.NoError(t, err)

	overdue, err := domain.CreateTask(ctx, model.Task{Title: "late", ProjectID: p.ID, ReporterID: u.ID, DueDate: validTime(now.Add(-time.Hour))})
	require.NoError(t, err)
	_, err = domain.CreateTask(ctx, model.Task{Title: "done", Status: model.TaskStatusDone, ProjectID: p.ID, ReporterID: u.ID, DueDate: validTime(now.Add(-time.Hour))})
	require.NoError(t, err)
	_, err = domain.CreateTask(ctx, model.Task{Title: "future", ProjectID: p.ID, ReporterID: u.ID, DueDate: validTime(now.Add(time.Hour))})
	require.NoError(t, err)
	_, err = domain.CreateTask(ctx, model.Task{Title: "no due", ProjectID: p.ID, ReporterID: u.ID})
	require.NoError(t, err)

	tasks, err := domain.OverdueTasks(ctx, now)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, overdue.ID, tasks[0].ID)
	assert.Equal(t, "late", tasks[0].Title)
	assert.True(t, tasks[0].DueDate.Valid)
}

func TestDomainStore_ProjectsDueWithin(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	domain := NewDomainStore(db)
	ctx := t.Context()
	now := time.Now().UTC()
	window := 72 * time.Hour

	u, err := domain.CreateUser(ctx, "auth0|u", "u")
	require.NoError(t, err)

	soon, err := domain.CreateProject(ctx, model.Project{Title: "soon", OwnerID: u.ID, DueDate: validTime(now.Add(24 * time.Hour))})
	require.NoError(t, err)
	_, err = domain.CreateProject(ctx, model.Project{Title: "far", OwnerID: u.ID, DueDate: validTime(now.Add(96 * time.Hour))})
	require.NoError(t, err)
	_, err = domain.CreateProject(ctx, model.Project{Title: "past", OwnerID: u.ID, DueDate: validTime(now.Add(-time.Hour))})
	require.NoError(t, err)
	_, err = domain.CreateProject(ctx, model.Project{Title: "done", Status: model.ProjectStatusDone, OwnerID: u.ID, DueDate: validTime(now.Add(time.Hour))})
	require.NoError(t, err)

	projects, err := domain.ProjectsDueWithin(ctx, now, now.Add(window))
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, soon.ID, projects[0].ID)
}

func TestDomainStore_ProjectRecipients(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	domain := NewDomainStore(db)
	ctx := t.Context()

	owner, err := domain.CreateUser(ctx, "auth0|c", "c")
	require.NoError(t, err)
	a, err := domain.CreateUser(ctx, "auth0|a", "a")
	require.NoError(t, err)
	b, err := domain.CreateUser(ctx, "auth0|b", "b")
	require.NoError(t, err)
	_, err = domain.CreateUser(ctx, "auth0|x", "outsider")
	require.NoError(t, err)

	p, err := domain.CreateProject(ctx, model.Project{Title: "P", OwnerID: owner.ID})
	require.NoError(t, err)
	require.NoError(t, domain.AddMember(ctx, p.ID, a.ID, model.ProjectRoleEditor))
	require.NoError(t, domain.AddMember(ctx, p.ID, b.ID, model.ProjectRoleViewer))
	// 所有者がメンバーにも含まれていても重複しない
	require.NoError(t, domain.AddMember(ctx, p.ID, owner.ID, model.ProjectRoleOwner))

	users, err := domain.ProjectRecipients(ctx, p)
	require.NoError(t, err)

	var ids []string
	for _, u := range users {
		ids = append(ids, u.AuthID)
	}
	assert.ElementsMatch(t, []string{"auth0|a", "auth0|b", "auth0|c"}, ids)
}

func TestDomainStore_Lookups(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	domain := NewDomainStore(db)
	ctx := t.Context()

	u, err := domain.CreateUser(ctx, "auth0|u", "u")
	require.NoError(t, err)

	got, err := domain.UserByAuthID(ctx, "auth0|u")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	got, err = domain.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = domain.UserByAuthID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = domain.TaskByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := domain.CreateProject(ctx, model.Project{Title: "P", OwnerID: u.ID})
	require.NoError(t, err)
	task, err := domain.CreateTask(ctx, model.Task{Title: "T", ProjectID: p.ID, ReporterID: u.ID})
	require.NoError(t, err)
	require.NoError(t, domain.UpdateTaskStatus(ctx, task.ID, model.TaskStatusReview))

	gotTask, err := domain.TaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusReview, gotTask.Status)
	assert.False(t, gotTask.AssigneeID.Valid)

	gotProject, err := domain.ProjectByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusInProgress, gotProject.Status)
}
