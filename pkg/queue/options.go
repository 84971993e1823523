package queue

import (
	"time"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
)

// Options holds configuration for job enqueueing.
type Options struct {
	Priority  int
	Attempts  int
	Delay     time.Duration
	UniqueKey string
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Priority: core.PriorityLow,
		Attempts: DefaultJobAttempts,
	}
}

// DefaultJobAttempts is the default number of attempts per job.
var DefaultJobAttempts = 3

// Priority sets the job priority tier (core.PriorityHigh/Medium/Low).
func Priority(p int) Option {
	return optionFunc(func(o *Options) { o.Priority = p })
}

// Attempts sets how many times the job may run before failing terminally.
func Attempts(n int) Option {
	return optionFunc(func(o *Options) { o.Attempts = n })
}

// Delay holds the job in the delayed state for the duration; the
// promotion loop releases it once the delay elapses.
func Delay(d time.Duration) Option {
	return optionFunc(func(o *Options) { o.Delay = d })
}

// Unique ensures only one non-terminal job with this key exists.
func Unique(key string) Option {
	return optionFunc(func(o *Options) { o.UniqueKey = key })
}
