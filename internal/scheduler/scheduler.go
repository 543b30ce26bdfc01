package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job は一定間隔で実行される1つのジョブ。
type Job struct {
	// Name はログとリースのキーに使うジョブ名。
	Name string
	// Interval は実行間隔。
	Interval time.Duration
	// Run はジョブ本体。
	Run func(ctx context.Context) error
}

// Locker はジョブの実行権を複数プロセス間で調停する。
// リースはttlの間有効で、その間に他のプロセスが取ろうとするとokがfalseになる。
// releaseは実行に失敗して次の保持者に再実行させたい場合だけ呼ぶ。
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// Option はSchedulerの設定を変更する。
type Option func(*Scheduler)

// WithLocker はジョブ実行前にリースを取るLockerを設定する。
func WithLocker(l Locker) Option {
	return func(s *Scheduler) {
		s.locker = l
	}
}

// Scheduler はジョブごとに1つのgoroutineとTickerを持ち、ジョブを順番に実行する。
type Scheduler struct {
	jobs   []Job
	locker Locker
	logger zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New は新しいSchedulerを生成する。
func New(logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add はジョブを追加する。Startより前に呼ぶこと。
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start は全ジョブのTickerを開始する。最初の実行は1間隔後になる。
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

// Stop は全ジョブのTickerを止め、実行中のジョブが終わるまで待つ。
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	logger := s.logger.With().Str("job", job.Name).Logger()
	logger.Info().Dur("interval", job.Interval).Msg("ジョブのスケジュールを開始します")

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("ジョブのスケジュールを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, job); err != nil {
				logger.Error().Err(err).Msg("ジョブの実行に失敗しました")
			}
		}
	}
}

// RunOnce はジョブを1回実行する。Lockerが設定されていれば実行間隔と同じ長さの
// リースを取ってから実行する。成功したリースは失効まで残し、同じ間隔内に
// 他のスケジューラが同じジョブを実行しないようにする。失敗した場合は解放する。
// ジョブ内のパニックはエラーとして返す。
func (s *Scheduler) RunOnce(ctx context.Context, job Job) (err error) {
	if s.locker != nil {
		release, ok, lockErr := s.locker.Acquire(ctx, job.Name, job.Interval)
		if lockErr != nil {
			return fmt.Errorf("ジョブ %s のリース取得に失敗: %w", job.Name, lockErr)
		}
		if !ok {
			s.logger.Debug().Str("job", job.Name).Msg("この間隔は別のスケジューラが実行済みのためスキップします")
			return nil
		}
		defer func() {
			if err != nil {
				release()
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ジョブ %s でパニックが発生: %v", job.Name, r)
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		return err
	}
	s.logger.Debug().Str("job", job.Name).Dur("elapsed", time.Since(start)).Msg("ジョブが完了しました")
	return nil
}
