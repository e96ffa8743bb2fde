package retry

import "time"

type option struct {
	maxRetryCount int
	delay         time.Duration
}

// OptionFunc configures a retry loop.
type OptionFunc func(*option)

func buildOptions(opts []OptionFunc) (o option) {
	o = option{
		maxRetryCount: 3,
		delay:         200 * time.Millisecond,
	}
	for _, optFn := range opts {
		optFn(&o)
	}
	return o
}

// WithRetryCount caps the number of attempts, including the first one.
func WithRetryCount(count int) OptionFunc {
	return func(o *option) {
		o.maxRetryCount = count
	}
}

// WithDelay sets the pause between consecutive attempts.
func WithDelay(delay time.Duration) OptionFunc {
	return func(o *option) {
		o.delay = delay
	}
}
