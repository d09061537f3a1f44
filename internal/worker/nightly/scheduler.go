// Package nightly は夜間バッチパイプラインのスケジューリングを提供する。
// 補填フェーズと満了フェーズを1つのジョブ内の順序付きフェーズとして実行し、
// タイマー間の時間差に依存した暗黙の順序付けを排除する。
package nightly

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hitoshi/milkrun/internal/clock"
	"github.com/hitoshi/milkrun/internal/metrics"
	"github.com/hitoshi/milkrun/internal/worker/concession"
	"github.com/hitoshi/milkrun/internal/worker/expiry"
)

// ConcessionProcessor は補填フェーズの実行インターフェース。
type ConcessionProcessor interface {
	Run(ctx context.Context) (concession.Result, error)
}

// ExpiryProcessor は満了フェーズの実行インターフェース。
type ExpiryProcessor interface {
	Run(ctx context.Context) (expiry.Result, error)
}

// Scheduler は営業タイムゾーンの壁時計に基づき、1営業日に1回
// 夜間パイプラインを起動する。各起動は独自の失敗境界でラップされ、
// ジョブ内の例外がホストプロセスや翌日のティックを道連れにすることはない。
type Scheduler struct {
	concession ConcessionProcessor
	expiry     ExpiryProcessor
	clock      *clock.BusinessClock
	logger     *slog.Logger
	recorder   metrics.BatchRecorder
	runHour    int
	runMinute  int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// runHour:runMinute は営業タイムゾーンにおける毎日の起動時刻。
func NewScheduler(
	concessionProc ConcessionProcessor,
	expiryProc ExpiryProcessor,
	businessClock *clock.BusinessClock,
	logger *slog.Logger,
	recorder metrics.BatchRecorder,
	runHour, runMinute int,
) *Scheduler {
	return &Scheduler{
		concession: concessionProc,
		expiry:     expiryProc,
		clock:      businessClock,
		logger:     logger,
		recorder:   recorder,
		runHour:    runHour,
		runMinute:  runMinute,
	}
}

// NextRunAfter はnowの次にパイプラインを起動すべき営業タイムゾーンの時刻を返す。
func (s *Scheduler) NextRunAfter(now time.Time) time.Time {
	local := now.In(s.clock.Location())
	next := time.Date(local.Year(), local.Month(), local.Day(), s.runHour, s.runMinute, 0, 0, s.clock.Location())
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start は毎営業日の起動時刻に夜間パイプラインを実行するループを開始する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("夜間バッチスケジューラを開始しました",
		slog.String("timezone", s.clock.Location().String()),
		slog.Int("run_hour", s.runHour),
		slog.Int("run_minute", s.runMinute),
	)

	for {
		next := s.NextRunAfter(s.clock.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("夜間バッチスケジューラを停止しました")
			return
		case <-timer.C:
			// ティック内のいかなる失敗も翌日のティックを妨げない。
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は夜間パイプラインを1回実行する。
// フェーズ1（補填）の永続化が完了した後にのみフェーズ2（満了）を評価する。
// 補填はEndDateを延長するため、この順序は同夜の誤満了を防ぐための
// ハード要件であり、タイマー間の偶発的な時間差には依存しない。
// フェーズ1がフェーズ全体として失敗した場合、そのティックのフェーズ2は
// 実行しない（両フェーズとも冪等のため翌日の実行で安全に再処理される）。
func (s *Scheduler) RunOnce(ctx context.Context) {
	concessionResult, err := s.runConcessionPhase(ctx)
	if err != nil {
		s.logger.Error("補填フェーズが失敗したため、このティックの満了フェーズをスキップします",
			slog.String("error", err.Error()),
		)
		return
	}

	s.recorder.RecordSubscriptionsProcessed(metrics.JobConcession, concessionResult.SubscriptionsProcessed)
	s.recorder.RecordSubscriptionFailures(metrics.JobConcession, concessionResult.SubscriptionsFailed)
	s.recorder.RecordConcessionsApplied(concessionResult.ConcessionsApplied)

	expiryResult, err := s.runExpiryPhase(ctx)
	if err != nil {
		s.logger.Error("満了フェーズが失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.recorder.RecordSubscriptionsProcessed(metrics.JobExpiry, expiryResult.CandidatesChecked)
	s.recorder.RecordSubscriptionFailures(metrics.JobExpiry, expiryResult.SubscriptionsFailed)
	s.recorder.RecordSubscriptionsExpired(expiryResult.SubscriptionsExpired)
}

// runConcessionPhase は補填フェーズをpanic境界付きで実行する。
func (s *Scheduler) runConcessionPhase(ctx context.Context) (result concession.Result, err error) {
	start := time.Now()
	defer func() {
		s.recorder.RecordRunDuration(metrics.JobConcession, time.Since(start))
		if rec := recover(); rec != nil {
			s.logger.Error("補填フェーズでpanicが発生しました",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("補填フェーズでpanicが発生しました: %v", rec)
		}
		if err != nil {
			s.recorder.RecordRunFailure(metrics.JobConcession)
		}
	}()

	result, err = s.concession.Run(ctx)
	return result, err
}

// runExpiryPhase は満了フェーズをpanic境界付きで実行する。
func (s *Scheduler) runExpiryPhase(ctx context.Context) (result expiry.Result, err error) {
	start := time.Now()
	defer func() {
		s.recorder.RecordRunDuration(metrics.JobExpiry, time.Since(start))
		if rec := recover(); rec != nil {
			s.logger.Error("満了フェーズでpanicが発生しました",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("満了フェーズでpanicが発生しました: %v", rec)
		}
		if err != nil {
			s.recorder.RecordRunFailure(metrics.JobExpiry)
		}
	}()

	result, err = s.expiry.Run(ctx)
	return result, err
}
