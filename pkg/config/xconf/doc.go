// Package xconf 基于 koanf 加载 YAML/JSON 配置，并支持监视配置文件变更。
//
// 各组件自带带 koanf 标签的 Config 结构体与 Validate 方法，xconf 只负责
// 把配置文件的某个段落反序列化到这些结构体上：
//
//	cfg, err := xconf.New("/etc/xgrid/xgrid.yaml")
//	exp := xexpire.DefaultConfig()
//	err = cfg.Unmarshal("expiration", &exp) // 未出现的字段保留默认值
//
// 目标实现了 [Validator] 时，Unmarshal 在反序列化后调用 Validate。
// 时间长度写成字符串（"60s"、"500ms"）。
//
// # 热更新
//
// [Watch] 监视配置文件所在目录，文件被写入、创建或重命名后经过防抖重新加载，
// 再调用回调。编辑器的"写临时文件再重命名"也能被正确识别。Watch 阻塞到 ctx 结束，
// 适合放进 errgroup。
package xconf
