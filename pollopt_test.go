package evpoll

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPollOptValidate(t *testing.T) {
	assert.NoError(t, Edge.Validate())
	assert.NoError(t, Level.Validate())
	assert.NoError(t, (Edge | Oneshot).Validate())
	assert.NoError(t, (Level | Oneshot).Validate())

	err := PollOpt(0).Validate()
	assert.Error(t, err)
	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, KindInvalidArgument, e.Kind)

	assert.Error(t, (Edge | Level).Validate())
	assert.Error(t, Oneshot.Validate())
}

func TestPollOptString(t *testing.T) {
	assert.Equal(t, "NONE", PollOpt(0).String())
	assert.Equal(t, "EDGE|ONESHOT", (Edge | Oneshot).String())
}

func TestPollOptContains(t *testing.T) {
	o := Level | Oneshot
	assert.True(t, o.Contains(Level))
	assert.True(t, o.Contains(Oneshot))
	assert.False(t, o.Contains(Edge))
}
