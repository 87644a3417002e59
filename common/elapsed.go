package common

import (
	"fmt"
	"time"
)

type Duration time.Duration

func (it Duration) Truncate(granularity time.Duration) Duration {
	return Duration(time.Duration(it).Truncate(granularity))
}

func (it Duration) Milliseconds() int64 {
	return time.Duration(it).Milliseconds()
}

func (it Duration) String() string {
	return fmt.Sprintf("%5.3fs", time.Duration(it).Seconds())
}

type stopwatch struct {
	message string
	started time.Time
}

func Stopwatch(form string, details ...interface{}) *stopwatch {
	message := fmt.Sprintf(form, details...)
	return &stopwatch{
		message: message,
		started: time.Now(),
	}
}

func (it *stopwatch) When() int64 {
	return it.started.Unix()
}

func (it *stopwatch) Elapsed() Duration {
	return Duration(time.Since(it.started))
}

func (it *stopwatch) Debug() Duration {
	elapsed := it.Elapsed()
	Debug("%v %v", it.message, elapsed)
	return elapsed
}

func (it *stopwatch) Log() Duration {
	elapsed := it.Elapsed()
	Log("%v %v", it.message, elapsed)
	return elapsed
}

func (it *stopwatch) Report() Duration {
	return it.Log()
}
