package xconf

import "github.com/knadh/koanf/v2"

// Format 是配置格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Validator 由需要在反序列化后校验的配置结构体实现。
type Validator interface {
	Validate() error
}

// Config 是已加载的配置。所有方法都是并发安全的。
type Config interface {
	// Client 返回底层的 koanf 实例。Reload 之后返回的是新实例。
	Client() *koanf.Koanf

	// Unmarshal 把 path 段落反序列化到 target，path 为空时使用整个配置。
	// target 中配置未出现的字段保持原值，因此可以先填入默认值。
	Unmarshal(path string, target any) error

	// Exists 报告 path 是否出现在配置中。
	Exists(path string) bool

	// Reload 重新读取配置文件。失败时保留旧配置。
	Reload() error

	// Path 返回配置文件路径，从字节创建时为空。
	Path() string

	// Format 返回配置格式。
	Format() Format
}
