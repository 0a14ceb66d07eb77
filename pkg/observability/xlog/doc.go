// Package xlog 根据配置构建 log/slog 日志记录器。
//
// 网格的各个包只依赖 *slog.Logger（通过 WithLogger 选项注入），
// xlog 只负责在进程入口处把配置变成一个可用的记录器：
//
//   - 级别：debug/info/warn/error，支持运行时通过 [Logger.SetLevel] 调整
//   - 格式：text 或 json
//   - 输出：默认写入调用方提供的 io.Writer；配置 File 时写入按大小轮转的文件
//
// 配置段使用 koanf 标签，Level 实现了 encoding.TextUnmarshaler，
// 可以直接从 YAML/JSON 字符串解码。
package xlog
