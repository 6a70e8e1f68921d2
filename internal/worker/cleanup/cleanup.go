// Package cleanup は論理削除済みレコードの自動削除ジョブを提供する。
// 保持期間（デフォルト5分）を超過した論理削除済みのホストとドメインを
// 定期的に物理削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/inventory/internal/repository"
)

// DefaultRetention は論理削除済みレコードのデフォルト保持期間。
const DefaultRetention = 5 * time.Minute

// Target は削除対象のテーブルとそのPurger。
// ホストを参照するドメインを先に削除できないため、ホストを先に並べる。
type Target struct {
	Name   string
	Purger repository.Purger
}

// PurgeRecorder は削除件数を記録するインターフェース。
type PurgeRecorder interface {
	RecordPurged(resource string, count int64)
}

// CleanupJob は保持期間を超過した論理削除済みレコードの自動削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	targets   []Target
	logger    *slog.Logger
	recorder  PurgeRecorder
	now       func() time.Time
	Retention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
// recorderはnilでもよい。
func NewCleanupJob(targets []Target, logger *slog.Logger, recorder PurgeRecorder) *CleanupJob {
	return &CleanupJob{
		targets:   targets,
		logger:    logger,
		recorder:  recorder,
		now:       time.Now,
		Retention: DefaultRetention,
	}
}

// Run は保持期間を超過した論理削除済みレコードをTargetの順に削除する。
// 途中のTargetで失敗した場合は以降を実行せずにエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	before := j.now().Add(-j.Retention)

	var total int64
	for _, t := range j.targets {
		deletedCount, err := t.Purger.PurgeDeleted(ctx, before)
		if err != nil {
			j.logger.Error("論理削除済みレコードの削除に失敗しました",
				slog.String("target", t.Name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%sのクリーンアップに失敗: %w", t.Name, err)
		}
		if j.recorder != nil && deletedCount > 0 {
			j.recorder.RecordPurged(t.Name, deletedCount)
		}
		j.logger.Debug("論理削除済みレコードを削除しました",
			slog.String("target", t.Name),
			slog.Int64("deleted_count", deletedCount),
		)
		total += deletedCount
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", total),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
