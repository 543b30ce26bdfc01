package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nao1215/powerboard/internal/notification"
	"github.com/nao1215/powerboard/internal/store"
)

// ジョブ名
const (
	JobOverdueTaskCheck    = "overdue_task_check"
	JobProjectDueSoonCheck = "project_due_soon_check"
)

// Jobs は通知ジョブの本体。実行間で状態を持たない。
type Jobs struct {
	domain   *store.DomainStore
	notifier *notification.Notifier
	// window は期限間近とみなす前方の時間幅。
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewJobs は新しいJobsを生成する。
func NewJobs(domain *store.DomainStore, notifier *notification.Notifier, window time.Duration, logger zerolog.Logger) *Jobs {
	return &Jobs{
		domain:   domain,
		notifier: notifier,
		window:   window,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// OverdueTaskCheck は期限が過ぎた未完了タスクの担当者へ毎回通知する。
// 1件の失敗で他のタスクの通知は止めない。
func (j *Jobs) OverdueTaskCheck(ctx context.Context) error {
	tasks, err := j.domain.OverdueTasks(ctx, j.now())
	if err != nil {
		return err
	}

	var errs []error
	sent := 0
	for _, task := range tasks {
		ok, err := j.notifier.TaskOverdue(ctx, task)
		if err != nil {
			errs = append(errs, fmt.Errorf("タスク%d: %w", task.ID, err))
			continue
		}
		if ok {
			sent++
		}
	}

	j.logger.Info().Int("tasks", len(tasks)).Int("sent", sent).Msg("期限切れタスクの走査が完了しました")
	return errors.Join(errs...)
}

// ProjectDueSoonCheck は期限が (now, now+window] の未完了プロジェクトについて
// メンバーと所有者へリマインダーを送る。既に同じ本文を受け取った受信者には送らない。
func (j *Jobs) ProjectDueSoonCheck(ctx context.Context) error {
	now := j.now()
	projects, err := j.domain.ProjectsDueWithin(ctx, now, now.Add(j.window))
	if err != nil {
		return err
	}

	var errs []error
	sent := 0
	for _, project := range projects {
		n, err := j.notifier.ProjectDueSoon(ctx, project)
		sent += n
		if err != nil {
			errs = append(errs, fmt.Errorf("プロジェクト%d: %w", project.ID, err))
		}
	}

	j.logger.Info().Int("projects", len(projects)).Int("sent", sent).Msg("期限間近プロジェクトの走査が完了しました")
	return errors.Join(errs...)
}

// Schedule はJobsの2つのジョブをSchedulerに登録する。
func (j *Jobs) Schedule(s *Scheduler, overdueInterval, dueSoonInterval time.Duration) {
	s.Add(Job{Name: JobOverdueTaskCheck, Interval: overdueInterval, Run: j.OverdueTaskCheck})
	s.Add(Job{Name: JobProjectDueSoonCheck, Interval: dueSoonInterval, Run: j.ProjectDueSoonCheck})
}
