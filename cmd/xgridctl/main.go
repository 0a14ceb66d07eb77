// xgridctl 运行并检查单节点数据网格。
//
// 用法:
//
//	xgridctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config     配置文件路径（YAML 或 JSON）
//	    --log-level  日志级别 debug/info/warn/error，覆盖配置文件
//
// 命令:
//
//	validate   加载并校验配置文件
//	run        启动节点，暴露 /metrics，并在配置文件变化时热更新回收间隔
//	simulate   写入一批会过期的条目，运行一段时间后输出回收统计
//
// 退出码:
//
//	0: 成功
//	1: 运行失败
//	2: 参数或配置错误
//
// 示例:
//
//	xgridctl -c grid.yaml validate
//	xgridctl -c grid.yaml run
//	xgridctl simulate --entries 10000 --lifespan 2s --duration 10s
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// 版本信息，通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xgridctl",
		Usage:   "单节点数据网格的运行与检查工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)，覆盖配置文件的 log.level",
			},
		},
		Commands: createCommands(),
		// 设计决策: 退出码统一由 run() 映射，不让 urfave/cli 直接 os.Exit。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	return exitCode(app.Run(ctx, args))
}

// exitCode 把命令错误映射为退出码并输出错误信息。
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}
