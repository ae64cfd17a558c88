package native

import (
	"time"

	"github.com/gogpu/gputypes"
)

// Defaults for Option values.
const (
	DefaultWaitTimeout        = 5 * time.Second
	DefaultBindGroupCacheSize = 64
)

// Option configures a Device.
type Option func(*options)

type options struct {
	waitTimeout   time.Duration
	bindGroupSize int
	adapterName   string
	limits        *gputypes.Limits
}

func defaultOptions() options {
	return options{
		waitTimeout:   DefaultWaitTimeout,
		bindGroupSize: DefaultBindGroupCacheSize,
	}
}

// WithWaitTimeout bounds how long Flush and ReadTexture wait for submitted
// work. Zero or negative uses DefaultWaitTimeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

// WithBindGroupCacheSize sets how many bind groups are kept for reuse.
// Zero or negative uses DefaultBindGroupCacheSize.
func WithBindGroupCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bindGroupSize = n
		}
	}
}

// WithAdapter makes New prefer the first adapter whose name contains name.
// Without a match New falls back to its default choice.
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapterName = name
	}
}

// WithLimits sets the limits buffer allocations are checked against. Use it
// with NewFromHAL or NewFromProvider when the hal device was opened with
// limits above gputypes.DefaultLimits. For New it overrides the limits the
// adapter reports.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) {
		o.limits = &l
	}
}
