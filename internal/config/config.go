package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string `mapstructure:"mode"`
	ControlPort int    `mapstructure:"control_port"`
	Secret      string `mapstructure:"secret"`

	APIURL     string        `mapstructure:"api_url"`
	APITimeout time.Duration `mapstructure:"api_timeout"`

	SignalURL         string        `mapstructure:"signal_url"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	ReconnectDelayMax time.Duration `mapstructure:"reconnect_delay_max"`

	STUNServers  []string      `mapstructure:"stun_servers"`
	FailureGrace time.Duration `mapstructure:"failure_grace"`

	Capture CaptureConfig `mapstructure:"capture"`
}

type CaptureConfig struct {
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	Facing    string `mapstructure:"facing"`
	Synthetic bool   `mapstructure:"synthetic"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("control_port", 8080)
	v.SetDefault("secret", "meet-local-secret")
	v.SetDefault("api_url", "http://localhost:5000/api/v1")
	v.SetDefault("api_timeout", "10s")
	v.SetDefault("signal_url", "ws://localhost:5000/signal")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("reconnect_delay", "1s")
	v.SetDefault("reconnect_delay_max", "5s")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("failure_grace", "3s")
	v.SetDefault("capture.width", 1280)
	v.SetDefault("capture.height", 720)
	v.SetDefault("capture.facing", "user")
	v.SetDefault("capture.synthetic", false)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Control: %d | Signal: %s\n", cfg.Mode, cfg.ControlPort, cfg.SignalURL)
	return &cfg, nil
}
