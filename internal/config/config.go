package config

import (
	"fmt"

	pkgconfig "escrow-service/pkg/config"

	"gopkg.in/yaml.v3"
)

// AuthConfig extends the shared JWT config with service-specific knobs.
type AuthConfig struct {
	JWT pkgconfig.JWTConfig `yaml:"jwt"`
	// TokenTTLHours bounds issued token lifetime. Default 24.
	TokenTTLHours int `yaml:"token_ttl_hours"`
	// DevVerifier accepts any wallet signature. Local profile only.
	DevVerifier bool `yaml:"dev_verifier"`
}

// Config is the full service configuration.
type Config struct {
	Server pkgconfig.ServerConfig `yaml:"server"`
	DB     pkgconfig.DBConfig     `yaml:"db"`
	MQ     pkgconfig.MQConfig     `yaml:"mq"`
	Redis  pkgconfig.RedisConfig  `yaml:"redis"`
	Auth   AuthConfig             `yaml:"auth"`
	Escrow pkgconfig.EscrowConfig `yaml:"escrow"`
}

// Load reads config/<env>.yaml overlaid on base.yaml, then applies
// environment variable overrides.
func Load() (*Config, error) {
	env := pkgconfig.GetConfigEnv()
	raw, err := pkgconfig.LoadConfig(env, pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Round-trip through yaml to map the merged tree onto the struct.
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideJWTFromEnv(&cfg.Auth.JWT)

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Auth.TokenTTLHours <= 0 {
		cfg.Auth.TokenTTLHours = 24
	}
	if cfg.Escrow.EmergencyWindowHours <= 0 {
		cfg.Escrow.EmergencyWindowHours = 144
	}
	if cfg.Escrow.AbandonmentWindowHours <= 0 {
		cfg.Escrow.AbandonmentWindowHours = cfg.Escrow.EmergencyWindowHours * 7
	}
	if cfg.Escrow.NotificationBuffer <= 0 {
		cfg.Escrow.NotificationBuffer = 256
	}

	return &cfg, nil
}
