package auth

import "time"

// Recorder は認証処理のメトリクスを記録するインターフェース。
// metrics.Collector が実装する。
type Recorder interface {
	RecordLogin(outcome string)
	RecordTokenRejected(reason string)
	RecordHashLatency(op string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(string)                      {}
func (nopRecorder) RecordTokenRejected(string)              {}
func (nopRecorder) RecordHashLatency(string, time.Duration) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
