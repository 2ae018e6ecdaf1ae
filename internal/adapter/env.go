package adapter

import (
	"strings"

	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// configKeys lists every key so AutomaticEnv can see overrides for keys
// that are absent from the config file.
var configKeys = []string{
	"server.url",
	"player.output", "player.command", "player.args", "player.start_flag",
	"cache.dir", "cache.workers",
	"media_session.enabled",
	"logging.file", "logging.level",
	"serve.addr", "serve.database", "serve.download_dir",
}

func bindEnvKeys(v *viper.Viper) {
	for _, key := range configKeys {
		v.BindEnv(key)
	}
}
