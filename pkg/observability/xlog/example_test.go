package xlog_test

import (
	"os"

	"github.com/omeyang/xgrid/pkg/observability/xlog"
)

func ExampleNew() {
	logger, err := xlog.New(xlog.Config{Level: xlog.LevelInfo}, xlog.WithOutput(os.Stdout))
	if err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Debug("not printed")
	logger.SetLevel(xlog.LevelDebug)
	os.Stdout.WriteString(logger.Level().String() + "\n")
	// Output: debug
}
