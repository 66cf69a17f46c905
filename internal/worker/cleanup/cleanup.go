// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// PostgreSQLのセッションストアは期限切れ行を自動では消さないため、
// 一定間隔のバッチで expires_at を過ぎたセッションを削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はセッション掃除の既定の実行間隔。
const DefaultInterval = time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SweepRecorder は削除件数の記録先。
type SweepRecorder interface {
	RecordSessionsSwept(count int64)
}

// SessionSweeper は期限切れセッションの削除ジョブ。
// 削除条件は検証時の判定（expires_at > now() のみ有効）と揃えているため、
// 有効なセッションを誤って消すことはない。
type SessionSweeper struct {
	db       Executor
	logger   *slog.Logger
	recorder SweepRecorder
}

// NewSessionSweeper は新しいSessionSweeperを生成する。recorderはnilでもよい。
func NewSessionSweeper(db Executor, logger *slog.Logger, recorder SweepRecorder) *SessionSweeper {
	return &SessionSweeper{
		db:       db,
		logger:   logger,
		recorder: recorder,
	}
}

// Run は期限切れセッションを1回削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (s *SessionSweeper) Run(ctx context.Context) error {
	start := time.Now()

	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		s.logger.Error("セッション掃除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		s.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordSessionsSwept(deletedCount)
	}

	s.logger.Info("セッション掃除ジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は指定間隔のティッカーでジョブを繰り返し実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
// 個々の実行の失敗はログに残して次の周期へ進む。
func (s *SessionSweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("セッション掃除ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	_ = s.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("セッション掃除ジョブを停止しました")
			return
		case <-ticker.C:
			_ = s.Run(ctx)
		}
	}
}
