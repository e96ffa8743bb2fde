package retry

import (
	"errors"
	"fmt"
	"time"
)

// DoWithResult calls fn until it succeeds or the retry count is exceeded.
func DoWithResult[T any](fn func() (T, error), opts ...OptionFunc) (T, error) {
	opt := buildOptions(opts)

	var retryCount int
	for {
		t, err := fn()
		if err != nil {
			retryCount++
			if retryCount >= opt.maxRetryCount {
				return t, errors.Join(err, fmt.Errorf("retry count exceeded: %d", retryCount))
			}
			time.Sleep(opt.delay)
			continue
		}

		return t, nil
	}
}

// Do calls fn until it succeeds or the retry count is exceeded.
func Do(fn func() error, opts ...OptionFunc) error {
	_, err := DoWithResult(func() (struct{}, error) {
		return struct{}{}, fn()
	}, opts...)
	return err
}
