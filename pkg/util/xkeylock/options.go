package xkeylock

import "fmt"

const (
	defaultStripes = 64
	maxStripes     = 1 << 16
)

// Option 定义 Striped 可选配置。
type Option func(*options)

type options struct {
	stripes int
}

func defaultOptions() options {
	return options{stripes: defaultStripes}
}

// WithStripes 设置锁槽数量。
// n 必须为 2 的幂，范围 [1, 65536]，否则 New 返回 [ErrInvalidStripes]。默认 64。
func WithStripes(n int) Option {
	return func(o *options) {
		o.stripes = n
	}
}

func (o *options) validate() error {
	n := o.stripes
	if n <= 0 || n > maxStripes || n&(n-1) != 0 {
		return fmt.Errorf("%w: must be a positive power of 2 (max %d), got %d",
			ErrInvalidStripes, maxStripes, n)
	}
	return nil
}
