// Package config centralizes runtime settings for the API and the
// dispatch workers. Values come from config.yaml in the working
// directory and from BULKSMS_-prefixed environment variables, with the
// environment winning.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Termii   TermiiConfig   `mapstructure:"termii"`
	Phone    PhoneConfig    `mapstructure:"phone"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Message  MessageConfig  `mapstructure:"message"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AuthToken      string   `mapstructure:"auth_token"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

type TermiiConfig struct {
	APIKey    string `mapstructure:"api_key"`
	SenderID  string `mapstructure:"sender_id"`
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

type PhoneConfig struct {
	DefaultCountry string `mapstructure:"default_country"`
	Format         string `mapstructure:"format"`
	NationalLength int    `mapstructure:"national_length"`
}

type DispatchConfig struct {
	Workers        int `mapstructure:"workers"`
	QueueCapacity  int `mapstructure:"queue_capacity"`
	PerSendDelayMS int `mapstructure:"per_send_delay_ms"`
}

type UploadConfig struct {
	MaxBytes        int64 `mapstructure:"max_bytes"`
	PreviewPageSize int   `mapstructure:"preview_page_size"`
}

type MessageConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("BULKSMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)

	v.SetDefault("termii.api_key", "")
	v.SetDefault("termii.sender_id", "InfoText")
	v.SetDefault("termii.base_url", "https://v3.api.termii.com")
	v.SetDefault("termii.timeout_ms", 15000)

	v.SetDefault("phone.default_country", "+234")
	v.SetDefault("phone.format", "local")
	v.SetDefault("phone.national_length", 10)

	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.queue_capacity", 64)
	v.SetDefault("dispatch.per_send_delay_ms", 250)

	v.SetDefault("upload.max_bytes", 10*1024*1024)
	v.SetDefault("upload.preview_page_size", 100)

	v.SetDefault("message.max_length", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
}

// bindLegacyEnv keeps the bare variable names that predate the
// BULKSMS_ prefix working.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("termii.api_key", "BULKSMS_TERMII_API_KEY", "TERMII_API_KEY")
	_ = v.BindEnv("termii.sender_id", "BULKSMS_TERMII_SENDER_ID", "TERMII_SENDER_ID")
	_ = v.BindEnv("phone.default_country", "BULKSMS_PHONE_DEFAULT_COUNTRY", "DEFAULT_COUNTRY_CODE")
}

func (c *Config) validate() error {
	if c.Phone.Format != "local" && c.Phone.Format != "international" {
		return eris.Errorf("config: phone.format must be local or international, got %q", c.Phone.Format)
	}
	if c.Phone.NationalLength <= 0 {
		return eris.New("config: phone.national_length must be positive")
	}
	if c.Dispatch.Workers <= 0 {
		return eris.New("config: dispatch.workers must be positive")
	}
	if c.Dispatch.QueueCapacity <= 0 {
		return eris.New("config: dispatch.queue_capacity must be positive")
	}
	if c.Dispatch.PerSendDelayMS < 0 || c.Dispatch.PerSendDelayMS > 5000 {
		return eris.New("config: dispatch.per_send_delay_ms must be between 0 and 5000")
	}
	if c.Upload.MaxBytes <= 0 {
		return eris.New("config: upload.max_bytes must be positive")
	}
	if c.Upload.PreviewPageSize < 1 || c.Upload.PreviewPageSize > 500 {
		return eris.New("config: upload.preview_page_size must be between 1 and 500")
	}
	if c.Message.MaxLength <= 0 {
		return eris.New("config: message.max_length must be positive")
	}
	return nil
}

func (c *Config) TermiiTimeout() time.Duration {
	return time.Duration(c.Termii.TimeoutMS) * time.Millisecond
}

func (c *Config) PerSendDelay() time.Duration {
	return time.Duration(c.Dispatch.PerSendDelayMS) * time.Millisecond
}
