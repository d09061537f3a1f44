package handler

import (
	"context"
	"net/http"
)

// NightlyRunner は夜間パイプラインのオンデマンド実行インターフェース。
type NightlyRunner interface {
	// RunOnce は補填フェーズ→満了フェーズの順で夜間パイプラインを1回実行する。
	RunOnce(ctx context.Context)
}

// JobHandler は運用向けのバッチ手動起動ハンドラー。
type JobHandler struct {
	runner NightlyRunner
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(runner NightlyRunner) *JobHandler {
	return &JobHandler{runner: runner}
}

// RunNightly は夜間パイプラインをオンデマンドで実行する。
// スケジュール実行と同じフェーズ順序・失敗境界で同期的に実行し、完了後に応答する。
// 両フェーズとも冪等のため、定時実行と重なっても二重補填は発生しない。
// POST /api/admin/jobs/nightly
func (h *JobHandler) RunNightly(w http.ResponseWriter, r *http.Request) {
	h.runner.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "completed",
	})
}
