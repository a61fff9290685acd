package logrollx

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	isNil(m.Register(reg), t)
	// 重复注册报错
	notNil(m.Register(reg), t)
	equals(5, len(m.Collectors()), t)
}

// TestMetricsRecordRollovers 滚动次数按写入器名称与触发原因计数
func TestMetricsRecordRollovers(t *testing.T) {
	dir := makeTempDir("TestMetricsRecordRollovers", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)
	reg := prometheus.NewRegistry()
	isNil(ctx.Metrics().Register(reg), t)

	a, policy := newRolling(ctx, "M", filepath.Join(dir, "app.log"), filepath.Join(dir, "app-%d{yyyy-MM-dd}.%i.log"))
	policy.MaxFileSize = 100
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()

	for i := 0; i < 10; i++ {
		writeString(a, line50, t)
	}
	clock.Set(day0.AddDate(0, 0, 1))
	writeString(a, line50, t)

	equals(1.0, testutil.ToFloat64(ctx.Metrics().Rotations.WithLabelValues("M", "time")), t)
	assert(testutil.ToFloat64(ctx.Metrics().Rotations.WithLabelValues("M", "size")) >= 1, t, "expected size rollovers")

	expected := `
# HELP logrollx_rotation_failures_total Number of rollovers that failed and were deferred.
# TYPE logrollx_rotation_failures_total counter
logrollx_rotation_failures_total{appender="M"} 0
`
	ctx.Metrics().RotationFailures.WithLabelValues("M")
	isNil(testutil.GatherAndCompare(reg, strings.NewReader(expected), "logrollx_rotation_failures_total"), t)
}
