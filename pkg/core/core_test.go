package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobTerminal(t *testing.T) {
	for status, terminal := range map[JobStatus]bool{
		StatusDelayed:   false,
		StatusQueued:    false,
		StatusActive:    false,
		StatusCompleted: true,
		StatusFailed:    true,
	} {
		j := &Job{Status: status}
		assert.Equal(t, terminal, j.Terminal(), "status %s", status)
	}
}

func TestNoRetryWrapping(t *testing.T) {
	cause := errors.New("bad credentials")
	err := NoRetry(cause)

	var noRetry *NoRetryError
	assert.ErrorAs(t, err, &noRetry)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "no retry")
}

func TestRetryAfterWrapping(t *testing.T) {
	cause := errors.New("rate limited")
	err := RetryAfter(5*time.Minute, cause)

	var retryAfter *RetryAfterError
	assert.ErrorAs(t, err, &retryAfter)
	assert.Equal(t, 5*time.Minute, retryAfter.Delay)
	assert.ErrorIs(t, err, cause)
}
