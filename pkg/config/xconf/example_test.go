package xconf_test

import (
	"fmt"
	"time"

	"github.com/omeyang/xgrid/pkg/config/xconf"
)

type reaperConfig struct {
	Interval time.Duration `koanf:"wake_up_interval"`
	Workers  int           `koanf:"workers"`
}

func ExampleConfig_Unmarshal() {
	cfg, err := xconf.NewFromBytes([]byte(`
expiration:
  wake_up_interval: 30s
`), xconf.FormatYAML)
	if err != nil {
		fmt.Println(err)
		return
	}

	rc := reaperConfig{Interval: time.Minute, Workers: 4}
	if err := cfg.Unmarshal("expiration", &rc); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(rc.Interval, rc.Workers)
	// Output: 30s 4
}
