package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xgrid/internal/gridnode"
	"github.com/omeyang/xgrid/pkg/config/xconf"
	"github.com/omeyang/xgrid/pkg/observability/xlog"
)

// exitError 表示命令已完成输出，只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 表示参数或配置错误，退出码为 2。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func createCommands() []*cli.Command {
	return []*cli.Command{
		createValidateCommand(),
		createRunCommand(),
		createSimulateCommand(),
	}
}

func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "加载并校验配置文件",
		Action: func(_ context.Context, cmd *cli.Command) error {
			path := cmd.String("config")
			if path == "" {
				return &usageError{err: fmt.Errorf("--config is required")}
			}
			_, cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			fmt.Fprintf(w, "配置有效: %s\n", path)
			fmt.Fprintf(w, "  mode: %s transactional: %t\n", cfg.Expiration.Mode, cfg.Expiration.Transactional)
			fmt.Fprintf(w, "  wake_up_interval: %s\n", cfg.Expiration.WakeUpInterval)
			for _, s := range cfg.Stores {
				fmt.Fprintf(w, "  store %s: type=%s shared=%t read_only=%t\n", s.Name, s.Type, s.Shared, s.ReadOnly)
			}
			return nil
		},
	}
}

// loadConfig 加载配置文件。path 为空时返回默认配置，src 为 nil。
func loadConfig(path string) (xconf.Config, gridnode.Config, error) {
	if path == "" {
		return nil, gridnode.DefaultConfig(), nil
	}
	src, err := xconf.New(path)
	if err != nil {
		return nil, gridnode.Config{}, &usageError{err: err}
	}
	cfg, err := gridnode.Load(src)
	if err != nil {
		return nil, gridnode.Config{}, &usageError{err: err}
	}
	return src, cfg, nil
}

// newLogger 按配置的 log 段创建日志记录器，--log-level 非空时覆盖配置级别。
// 未配置日志文件时写入根命令的 ErrWriter。
func newLogger(cmd *cli.Command, cfg xlog.Config) (*xlog.Logger, error) {
	if s := cmd.String("log-level"); s != "" {
		level, err := xlog.ParseLevel(s)
		if err != nil {
			return nil, &usageError{err: fmt.Errorf("--log-level: %w", err)}
		}
		cfg.Level = level
	}
	var w io.Writer = os.Stderr
	if root := cmd.Root(); root.ErrWriter != nil {
		w = root.ErrWriter
	}
	logger, err := xlog.New(cfg, xlog.WithOutput(w))
	if err != nil {
		return nil, &usageError{err: err}
	}
	return logger, nil
}

// setupSignalHandler 第一次信号取消 ctx，第二次强制退出。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
