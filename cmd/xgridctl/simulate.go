package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xgrid/internal/gridnode"
	"github.com/omeyang/xgrid/pkg/grid/xcache"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xnotify"
)

func createSimulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "写入一批会过期的条目并报告回收结果",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "entries", Usage: "写入条目数", Value: 1000},
			&cli.DurationFlag{Name: "lifespan", Usage: "条目存活时长", Value: 2 * time.Second},
			&cli.DurationFlag{Name: "max-idle", Usage: "条目最大空闲时长，0 表示不限"},
			&cli.DurationFlag{Name: "duration", Usage: "运行时长", Value: 5 * time.Second},
			&cli.DurationFlag{Name: "interval", Usage: "回收间隔，0 表示使用配置值"},
			&cli.IntFlag{Name: "reads", Usage: "结束前读取的条目数，用于触发读路径移除"},
		},
		Action: cmdSimulate,
	}
}

type simulation struct {
	entries  int
	lifespan time.Duration
	maxIdle  time.Duration
	duration time.Duration
	reads    int
}

type simulationReport struct {
	Written   int
	Reads     int
	Misses    int
	Expired   uint64
	Remaining int
	Cycles    uint64
	Skipped   uint64
	Failures  uint64
}

func cmdSimulate(ctx context.Context, cmd *cli.Command) error {
	sim := simulation{
		entries:  cmd.Int("entries"),
		lifespan: cmd.Duration("lifespan"),
		maxIdle:  cmd.Duration("max-idle"),
		duration: cmd.Duration("duration"),
		reads:    cmd.Int("reads"),
	}
	if sim.entries <= 0 || sim.lifespan <= 0 || sim.reads < 0 {
		return &usageError{err: fmt.Errorf("--entries and --lifespan must be positive, --reads must not be negative")}
	}
	if iv := cmd.Duration("interval"); iv%time.Second != 0 {
		return &usageError{err: fmt.Errorf("--interval %s must be a whole number of seconds", iv)}
	}
	_, cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Close()
	if iv := cmd.Duration("interval"); iv > 0 {
		cfg.Expiration.WakeUpInterval = iv
	}
	node, err := gridnode.New(cfg, gridnode.WithLogger(logger.Logger))
	if err != nil {
		return err
	}
	report, err := sim.run(ctx, node)
	if err != nil {
		return err
	}
	report.print(cmd.Root().Writer)
	return nil
}

// run 驱动一次模拟并关闭 node。
func (s simulation) run(ctx context.Context, node *gridnode.Node) (r simulationReport, err error) {
	var expired atomic.Uint64
	if _, err := node.Bus.Subscribe(xnotify.ListenerFunc(func(context.Context, xentry.Event) error {
		expired.Add(1)
		return nil
	})); err != nil {
		return r, err
	}
	defer func() {
		cerr := node.Close(context.WithoutCancel(ctx))
		if err == nil {
			err = cerr
		}
		st := node.Expiration.Stats()
		r.Expired = expired.Load()
		r.Remaining = node.Cache.Len()
		r.Cycles, r.Skipped, r.Failures = st.Cycles, st.Skipped, st.Failures
	}()
	if err := node.Start(ctx); err != nil {
		return r, err
	}

	opts := []xcache.EntryOption{xcache.WithLifespan(s.lifespan)}
	if s.maxIdle > 0 {
		opts = append(opts, xcache.WithMaxIdle(s.maxIdle))
	}
	for i := range s.entries {
		if _, err := node.Cache.Put(ctx, simKey(i), []byte(uuid.NewString()), opts...); err != nil {
			return r, err
		}
		r.Written++
	}

	select {
	case <-ctx.Done():
	case <-time.After(s.duration):
	}

	for i := range min(s.reads, s.entries) {
		_, ok, err := node.Cache.Get(context.WithoutCancel(ctx), simKey(i))
		if err != nil {
			return r, err
		}
		r.Reads++
		if !ok {
			r.Misses++
		}
	}
	// 最后一次回收，收尾调度间隔内未处理的条目
	return r, node.Expiration.ProcessExpiration(context.WithoutCancel(ctx))
}

func simKey(i int) string {
	return fmt.Sprintf("sim-%06d", i)
}

func (r simulationReport) print(w io.Writer) {
	fmt.Fprintf(w, "written: %d\n", r.Written)
	fmt.Fprintf(w, "reads: %d (misses: %d)\n", r.Reads, r.Misses)
	fmt.Fprintf(w, "expired events: %d\n", r.Expired)
	fmt.Fprintf(w, "remaining: %d\n", r.Remaining)
	fmt.Fprintf(w, "cycles: %d skipped: %d failures: %d\n", r.Cycles, r.Skipped, r.Failures)
}
