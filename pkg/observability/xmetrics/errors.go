package xmetrics

import "errors"

var (
	// ErrCreateInstrument 表示创建 OTel 指标失败。
	ErrCreateInstrument = errors.New("xmetrics: create instrument failed")
	// ErrRegister 表示 Prometheus 采集器注册失败。
	ErrRegister = errors.New("xmetrics: register collector failed")
)
