package evpoll

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eventkit-go/evpoll/log"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	assert.Equal(t, DefaultChangeCapacity, o.changeCapacity)
	assert.Equal(t, log.Default, o.logger)
}

func TestWithChangeBufferCapacity(t *testing.T) {
	o := buildOptions([]Option{WithChangeBufferCapacity(64)})
	assert.Equal(t, 64, o.changeCapacity)

	o = buildOptions([]Option{WithChangeBufferCapacity(0)})
	assert.Equal(t, DefaultChangeCapacity, o.changeCapacity)
}

func TestWithEventsCapacity(t *testing.T) {
	o := buildOptions([]Option{WithEventsCapacity(512)})
	assert.Equal(t, 512, o.eventsCapacity)

	o = buildOptions([]Option{WithEventsCapacity(-1)})
	assert.Equal(t, DefaultEventsCapacity, o.eventsCapacity)
}

type stubLogger struct{}

func (stubLogger) Debug(args ...any)                 {}
func (stubLogger) Debugf(format string, args ...any) {}
func (stubLogger) Info(args ...any)                  {}
func (stubLogger) Infof(format string, args ...any)  {}
func (stubLogger) Warn(args ...any)                  {}
func (stubLogger) Warnf(format string, args ...any)  {}
func (stubLogger) Error(args ...any)                 {}
func (stubLogger) Errorf(format string, args ...any) {}
func (stubLogger) Fatal(args ...any)                 {}
func (stubLogger) Fatalf(format string, args ...any) {}

func TestWithLogger(t *testing.T) {
	l := stubLogger{}
	o := buildOptions([]Option{WithLogger(l)})
	assert.Equal(t, l, o.logger)

	o = buildOptions([]Option{WithLogger(nil)})
	assert.Equal(t, log.Default, o.logger)
}
