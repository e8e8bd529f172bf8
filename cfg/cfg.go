// Package cfg loads the node configuration from a YAML file layered
// under TRIGGR_-prefixed environment variables.
package cfg

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Chains  []ChainConfig `mapstructure:"chains"`
	Hub     HubConfig     `mapstructure:"hub"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// ChainConfig names one chain endpoint and the contract this node ingests
// events for.
type ChainConfig struct {
	Name            string `mapstructure:"name"`
	Endpoint        string `mapstructure:"endpoint"`
	ContractAddress string `mapstructure:"contract_address"`
}

type HubConfig struct {
	SubscriberQueue int           `mapstructure:"subscriber_queue"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads config from path (or the default search path if path is
// empty), falling back to defaults and TRIGGR_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/triggr")
	}

	v.SetDefault("server.addr", ":5190")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("store.dir", "./.data")
	v.SetDefault("hub.subscriber_queue", 256)
	v.SetDefault("hub.ping_interval", 30*time.Second)
	v.SetDefault("hub.pong_timeout", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetEnvPrefix("TRIGGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
