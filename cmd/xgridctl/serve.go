package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xgrid/internal/gridnode"
	"github.com/omeyang/xgrid/pkg/config/xconf"
	"github.com/omeyang/xgrid/pkg/lifecycle/xrun"
)

const shutdownTimeout = 10 * time.Second

func createRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "启动节点直到收到 SIGINT/SIGTERM",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "stats-interval",
				Usage: "周期输出回收统计的间隔，0 表示不输出",
				Value: time.Minute,
			},
		},
		Action: cmdRun,
	}
}

func cmdRun(ctx context.Context, cmd *cli.Command) (err error) {
	src, cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, logger.Close()) }()

	node, err := gridnode.New(cfg, gridnode.WithLogger(logger.Logger))
	if err != nil {
		return err
	}
	opts := serveOptions{
		src:           src,
		addr:          cfg.Metrics.Addr,
		logger:        logger.Logger,
		statsInterval: cmd.Duration("stats-interval"),
		signals:       true,
	}
	if cmd.String("log-level") == "" {
		opts.onReload = func(next gridnode.Config) { logger.SetLevel(next.Log.Level) }
	}
	return serve(ctx, node, opts)
}

type serveOptions struct {
	src           xconf.Config
	addr          string
	logger        *slog.Logger
	statsInterval time.Duration
	signals       bool
	// onReload 在配置重载成功后调用，可为 nil。
	onReload func(gridnode.Config)
	// ready 非 nil 时在 /metrics 开始监听后收到实际地址。
	ready chan<- string
}

// serve 运行节点直到 ctx 结束或收到信号，返回前关闭节点。
func serve(ctx context.Context, node *gridnode.Node, o serveOptions) (err error) {
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, node.Close(cctx))
	}()
	if err := node.Start(ctx); err != nil {
		return err
	}

	g, _ := xrun.NewGroup(ctx, xrun.WithLogger(o.logger))
	if o.signals {
		g.Go("signals", xrun.Signals(g))
	}
	if o.addr != "" {
		ln, err := net.Listen("tcp", o.addr)
		if err != nil {
			g.Cancel(err)
			return g.Wait()
		}
		srv := &http.Server{Handler: metricsHandler(node), ReadHeaderTimeout: 5 * time.Second}
		g.Go("metrics", xrun.HTTPServer(srv, ln, shutdownTimeout))
		o.logger.Info("xgridctl: metrics listening", slog.String("addr", ln.Addr().String()))
		if o.ready != nil {
			o.ready <- ln.Addr().String()
		}
	}
	if o.src != nil {
		g.Go("config-watch", func(ctx context.Context) error {
			return xconf.Watch(ctx, o.src, reloader(node, o.logger, o.onReload))
		})
	}
	if o.statsInterval > 0 {
		g.Go("stats", xrun.Ticker(o.statsInterval, func(ctx context.Context) error {
			logStats(ctx, o.logger, node)
			return nil
		}))
	}
	g.Go("node", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	o.logger.Info("xgridctl: node running",
		slog.Duration("wake_up_interval", node.Expiration.Interval()),
		slog.String("policy", node.Expiration.Policy().Kind().String()))
	err = g.Wait()
	if errors.Is(err, xrun.ErrSignal) {
		err = nil
	}
	logStats(ctx, o.logger, node)
	return err
}

func logStats(ctx context.Context, logger *slog.Logger, node *gridnode.Node) {
	st := node.Expiration.Stats()
	logger.LogAttrs(ctx, slog.LevelInfo, "xgridctl: expiration stats",
		slog.Uint64("cycles", st.Cycles),
		slog.Uint64("removed", st.Removed),
		slog.Uint64("cluster_removals", st.ClusterRemovals),
		slog.Uint64("skipped", st.Skipped),
		slog.Uint64("failures", st.Failures),
		slog.Int("entries", node.Cache.Len()))
}

func metricsHandler(node *gridnode.Node) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(node.Metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// reloader 把配置文件的变化应用到运行中的节点。失败时保留当前配置。
func reloader(node *gridnode.Node, logger *slog.Logger, onReload func(gridnode.Config)) xconf.WatchCallback {
	return func(src xconf.Config, err error) {
		if err != nil {
			logger.Warn("xgridctl: config reload failed", slog.Any("error", err))
			return
		}
		cfg, err := gridnode.Load(src)
		if err == nil {
			err = node.Reload(cfg)
		}
		if err != nil {
			logger.Warn("xgridctl: config rejected", slog.String("path", src.Path()), slog.Any("error", err))
			return
		}
		if onReload != nil {
			onReload(cfg)
		}
		logger.Info("xgridctl: config reloaded", slog.String("path", src.Path()))
	}
}
