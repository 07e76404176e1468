package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eventkit-go/evpoll/metrics"
)

func TestAddGet(t *testing.T) {
	before := metrics.Get(metrics.SelectWait)
	metrics.Add(metrics.SelectWait, 3)
	assert.Equal(t, before+3, metrics.Get(metrics.SelectWait))
}

func TestSetGauge(t *testing.T) {
	metrics.Set(metrics.RegistrationsActive, 7)
	assert.Equal(t, uint64(7), metrics.Get(metrics.RegistrationsActive))
}

func TestGetOutOfRange(t *testing.T) {
	assert.Equal(t, uint64(0), metrics.Get(metrics.Max))
	metrics.Add(metrics.Max, 1)
	metrics.Set(metrics.Max, 1)
}

func TestGetAllAndShow(t *testing.T) {
	all := metrics.GetAll()
	assert.Equal(t, int(metrics.Max), len(all))
	metrics.ShowMetrics()
}

func TestShowMetricsOfPeriod(t *testing.T) {
	metrics.ShowMetricsOfPeriod(time.Millisecond)
}
