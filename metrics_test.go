package corecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordCommand(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	assert.Zero(t, snap.TotalOps)

	m.RecordCommand("get", 1_000_000, true)
	m.RecordCommand("set", 2_000_000, true)
	m.RecordCommand("get", 500_000, false)

	snap = m.Snapshot()
	assert.Equal(t, uint64(2), snap.GetOps)
	assert.Equal(t, uint64(1), snap.SetOps)
	assert.Equal(t, uint64(1), snap.CommandErrors)
	assert.Equal(t, uint64(3), snap.TotalOps)
	assert.InDelta(t, 100.0/3.0, snap.ErrorRate, 0.1)
}

func TestMetricsBytesAndConns(t *testing.T) {
	m := NewMetrics()

	m.RecordBytesIn(128)
	m.RecordBytesOut(256)
	m.RecordConnOpened()
	m.RecordConnOpened()
	m.RecordConnClosed()

	snap := m.Snapshot()
	assert.Equal(t, uint64(128), snap.BytesIn)
	assert.Equal(t, uint64(256), snap.BytesOut)
	assert.Equal(t, uint64(2), snap.ConnsOpened)
	assert.Equal(t, int64(1), snap.ConnsActive)
}

func TestMetricsLatencyAverage(t *testing.T) {
	m := NewMetrics()

	m.RecordCommand("get", 1_000_000, true)
	m.RecordCommand("set", 2_000_000, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1_500_000), snap.AvgLatencyNs)
}

func TestMetricsUptimeFreezesAfterStop(t *testing.T) {
	m := NewMetrics()
	time.Sleep(5 * time.Millisecond)

	m.Stop()
	snap := m.Snapshot()
	time.Sleep(5 * time.Millisecond)
	snap2 := m.Snapshot()

	assert.Equal(t, snap.UptimeNs, snap2.UptimeNs)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordCommand("get", 1_000_000, true)
	m.RecordBytesIn(64)

	assert.NotZero(t, m.Snapshot().TotalOps)

	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.TotalOps)
	assert.Zero(t, snap.BytesIn)
}

func TestMetricsHistogramPercentiles(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordCommand("get", 500_000, true) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordCommand("get", 5_000_000, true) // 5ms
	}
	m.RecordCommand("get", 50_000_000, true) // 50ms, the P99

	snap := m.Snapshot()
	assert.Equal(t, uint64(100), snap.TotalOps)
	assert.InDelta(t, 500_000, snap.LatencyP50Ns, 600_000)
	assert.Greater(t, snap.LatencyP99Ns, uint64(5_000_000))

	var total uint64
	for _, n := range snap.LatencyHistogram {
		total += n
	}
	assert.NotZero(t, total)
}

func TestObserverNoOp(t *testing.T) {
	var o Observer = NoOpObserver{}
	assert.NotPanics(t, func() {
		o.ObserveCommand("get", 1000, true)
		o.ObserveBytesIn(10)
		o.ObserveBytesOut(10)
		o.ObserveConnOpened()
		o.ObserveConnClosed()
	})
}

func TestMetricsObserverForwardsToMetrics(t *testing.T) {
	m := NewMetrics()
	o := NewMetricsObserver(m)

	o.ObserveCommand("set", 1_000_000, true)
	o.ObserveBytesIn(10)
	o.ObserveBytesOut(20)
	o.ObserveConnOpened()

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.SetOps)
	assert.Equal(t, uint64(10), snap.BytesIn)
	assert.Equal(t, uint64(20), snap.BytesOut)
	assert.Equal(t, uint64(1), snap.ConnsOpened)
}
