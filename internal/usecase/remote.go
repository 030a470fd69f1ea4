package usecase

import (
	"time"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

type noopRemoteMetrics struct{}

func (noopRemoteMetrics) RemoteCall(string, time.Duration, error) {}

func remoteMetricsOrNoop(metrics ports.RemoteMetrics) ports.RemoteMetrics {
	if metrics == nil {
		return noopRemoteMetrics{}
	}
	return metrics
}

// call runs one persistence or generative request, records its latency and
// marks a failure as a RemoteError.
func call[T any](metrics ports.RemoteMetrics, op string, fn func() (T, error)) (T, error) {
	started := time.Now()
	out, err := fn()
	metrics.RemoteCall(op, time.Since(started), err)
	if err != nil {
		return out, domain.Remote(op, err)
	}
	return out, nil
}

func callErr(metrics ports.RemoteMetrics, op string, fn func() error) error {
	_, err := call(metrics, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
