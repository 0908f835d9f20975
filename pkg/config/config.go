package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nova-lang/nova/pkg/logger"
	"github.com/spf13/viper"
)

const configName = "nova"

type CfgInfo struct {
	Pipeline *PipelineConfig `mapstructure:"pipeline"`
	Output   *OutputConfig   `mapstructure:"output"`
	Log      *logger.Config  `mapstructure:"log"`
	Server   *ServerConfig   `mapstructure:"server"`
	History  *HistoryConfig  `mapstructure:"history"`
}

type PipelineConfig struct {
	// BufferSize is the capacity of every flow buffer in bytes.
	BufferSize int  `mapstructure:"buffersize"`
	Banner     bool `mapstructure:"banner"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Address   string   `mapstructure:"address"`
	RateLimit float64  `mapstructure:"ratelimit"`
	Burst     int      `mapstructure:"burst"`
	WhiteList []string `mapstructure:"whitelist"`
	// MaxBody caps the program size accepted by the eval endpoint.
	MaxBody int `mapstructure:"maxbody"`
	// LineAddress enables the raw TCP line server when set.
	LineAddress string `mapstructure:"lineaddress"`
}

type HistoryConfig struct {
	// Dir enables the result journal when set.
	Dir string `mapstructure:"dir"`
}

func DefaultConfig() *CfgInfo {
	return &CfgInfo{
		Pipeline: &PipelineConfig{BufferSize: 1024, Banner: true},
		Output:   &OutputConfig{Format: "text"},
		Log:      logger.DefaultConfig(),
		Server: &ServerConfig{
			Address:   "127.0.0.1:8650",
			RateLimit: 50,
			Burst:     100,
			WhiteList: []string{"127.0.0.1"},
			MaxBody:   1 << 20,
		},
		History: &HistoryConfig{},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("pipeline.buffersize", d.Pipeline.BufferSize)
	v.SetDefault("pipeline.banner", d.Pipeline.Banner)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.filename", d.Log.FileName)
	v.SetDefault("log.maxsize", d.Log.MaxSize)
	v.SetDefault("log.maxage", d.Log.MaxAge)
	v.SetDefault("log.maxbackups", d.Log.MaxBackups)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.ratelimit", d.Server.RateLimit)
	v.SetDefault("server.burst", d.Server.Burst)
	v.SetDefault("server.whitelist", d.Server.WhiteList)
	v.SetDefault("server.maxbody", d.Server.MaxBody)
	v.SetDefault("server.lineaddress", d.Server.LineAddress)
	v.SetDefault("history.dir", d.History.Dir)
}

// LoadConfig load configuration information. With an empty path nova.yaml
// is looked up in ./config/ and the working directory; a missing file there
// is not an error.
func LoadConfig(path string) (*CfgInfo, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("NOVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config/")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CfgInfo) Validate() error {
	if c.Pipeline == nil || c.Pipeline.BufferSize <= 0 {
		return errors.New("config: pipeline.buffersize must be positive")
	}
	if c.Output == nil {
		return errors.New("config: output section missing")
	}
	switch c.Output.Format {
	case "text", "json", "cbor":
	default:
		return fmt.Errorf("config: unknown output.format %q", c.Output.Format)
	}
	if c.Server != nil && c.Server.RateLimit < 0 {
		return errors.New("config: server.ratelimit must not be negative")
	}
	return nil
}
