package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config 定义日志配置。
type Config struct {
	// Level 日志级别，默认 info。
	Level Level `koanf:"level"`
	// Format 输出格式 text/json，默认 text。
	Format string `koanf:"format"`
	// AddSource 是否输出源码位置。
	AddSource bool `koanf:"add_source"`
	// File 日志文件路径，为空时写入 [WithOutput] 指定的 Writer。
	File string `koanf:"file"`
	// MaxSizeMB 单个文件的轮转阈值，默认 100。
	MaxSizeMB int `koanf:"max_size_mb"`
	// MaxBackups 保留的备份数，0 表示不按数量清理。
	MaxBackups int `koanf:"max_backups"`
	// MaxAgeDays 备份保留天数，0 表示不按天数清理。
	MaxAgeDays int `koanf:"max_age_days"`
	// Compress 是否 gzip 压缩备份。
	Compress bool `koanf:"compress"`
}

const defaultMaxSizeMB = 100

// Validate 校验配置。
func (c Config) Validate() error {
	switch strings.ToLower(c.Format) {
	case "", FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, c.Format)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("%w: max_size_mb=%d max_backups=%d max_age_days=%d",
			ErrInvalidRotation, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	}
	return nil
}

// Option 定义 New 的可选配置。
type Option func(*options)

type options struct {
	output io.Writer
}

// WithOutput 设置未配置 File 时的输出目标，默认 os.Stderr。nil 时忽略。
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// Logger 是带动态级别的 *slog.Logger。
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New 按 cfg 创建日志记录器。使用完毕后调用 [Logger.Close] 释放日志文件。
func New(cfg Config, opts ...Option) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{output: os.Stderr}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(slog.Level(cfg.Level))

	w := o.output
	if cfg.File != "" {
		size := cfg.MaxSizeMB
		if size == 0 {
			size = defaultMaxSizeMB
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    size,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w, l.closer = lj, lj
	}

	hopts := &slog.HandlerOptions{Level: l.level, AddSource: cfg.AddSource}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, FormatJSON) {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	l.Logger = slog.New(h)
	return l, nil
}

// SetLevel 运行时调整级别，派生的记录器同步生效。
func (l *Logger) SetLevel(level Level) {
	l.level.Set(slog.Level(level))
}

// Level 返回当前级别。
func (l *Logger) Level() Level {
	return Level(l.level.Level())
}

// Rotate 在配置了 File 时立即轮转日志文件。
func (l *Logger) Rotate() error {
	if lj, ok := l.closer.(*lumberjack.Logger); ok {
		return lj.Rotate()
	}
	return nil
}

// Close 关闭日志文件。没有日志文件时什么都不做，可重复调用。
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
