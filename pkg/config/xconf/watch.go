package xconf

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// WatchCallback 在每次重新加载之后调用。err 非 nil 时 cfg 仍是旧配置。
type WatchCallback func(cfg Config, err error)

// WatchOption 定义监视选项。
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// WithDebounce 设置防抖时间，这段时间内的多次变更只触发一次重新加载。默认 100ms。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watch 监视 cfg 的配置文件，变更后重新加载并调用 callback。
// 阻塞到 ctx 结束后返回 nil；监视无法建立时立即返回错误。
//
// 监视的是文件所在目录而不是文件本身：编辑器保存时常先删除再创建，
// 直接监视文件会在第一次保存后失效。
func Watch(ctx context.Context, cfg Config, callback WatchCallback, opts ...WatchOption) error {
	if cfg == nil || cfg.Path() == "" {
		return ErrNotFileBacked
	}
	o := watchOptions{debounce: defaultDebounce}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("xconf: create watcher: %w", err)
	}
	defer fw.Close() //nolint:errcheck // 关闭失败不影响退出

	dir, name := filepath.Split(filepath.Clean(cfg.Path()))
	if dir == "" {
		dir = "."
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("xconf: watch %s: %w", dir, err)
	}

	// 防抖定时器只在本协程内使用，未触发时 C 为 nil，select 永远不会选中它
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(o.debounce)
			} else {
				timer.Reset(o.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			err := cfg.Reload()
			if callback != nil {
				callback(cfg, err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if callback != nil {
				callback(cfg, fmt.Errorf("xconf: watch: %w", err))
			}
		}
	}
}
