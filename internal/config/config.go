package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. AAD_TENANT.
	EnvPrefix = "AAD"

	fileName = "aadtoken"
)

// Config holds the settings of the aadtoken command.
type Config struct {
	Tenant         string        `mapstructure:"tenant" default:"common" validate:"required"`
	Authority      string        `mapstructure:"authority" default:"https://login.microsoftonline.com" validate:"required,url"`
	ClockSkew      time.Duration `mapstructure:"clock_skew" default:"5m" validate:"gte=0s"`
	SkipExpiration bool          `mapstructure:"skip_expiration"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout" default:"10s" validate:"gt=0s"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" default:"15m" validate:"gt=0s"`
	MaxTenants     int           `mapstructure:"max_tenants" default:"100" validate:"gte=1"`

	// Shared JWKS cache. Empty RedisAddr keeps keys in memory.
	RedisAddr     string `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string `mapstructure:"redis_password" secret:"true"`
	RedisPrefix   string `mapstructure:"redis_prefix" default:"aadtoken:jwks:"`

	ListenAddr     string `mapstructure:"listen_addr" default:":8080" validate:"required"`
	GRPCListenAddr string `mapstructure:"grpc_listen_addr" validate:"omitempty,hostname_port"`
	GraphBaseURL   string `mapstructure:"graph_base_url" default:"https://graph.microsoft.com/v1.0/" validate:"required,url"`
	GraphEndpoint  string `mapstructure:"graph_endpoint" default:"me" validate:"required"`

	// Logging
	LogLevel   string `mapstructure:"log_level" default:"info" validate:"oneof=debug info warn error"`
	LogFormat  string `mapstructure:"log_format" default:"text" validate:"oneof=text json"`
	LogBackend string `mapstructure:"log_backend" default:"logrus" validate:"oneof=logrus zap zerolog"`
}

// Defaults returns a Config holding only default values.
func Defaults() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic("failed to set struct defaults: " + err.Error())
	}
	return cfg
}

// NewViper returns a viper instance that reads aadtoken.yaml from the working
// directory or $HOME/.config/aadtoken, and AAD_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", fileName))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads v into a Config on top of the defaults and validates it. A
// missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Defaults()

	typeOfCfg := reflect.TypeOf(cfg)
	for i := 0; i < typeOfCfg.NumField(); i++ {
		if key := typeOfCfg.Field(i).Tag.Get("mapstructure"); key != "" {
			if err := v.BindEnv(key); err != nil {
				return nil, fmt.Errorf("could not bind %s: %w", key, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its validate tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ConfigFile returns the file v read, or "" when none was found.
func ConfigFile(v *viper.Viper) string {
	return v.ConfigFileUsed()
}

// String returns a string representation of the config with secret fields redacted.
func (c *Config) String() string {
	v := reflect.ValueOf(*c)
	t := reflect.TypeOf(*c)
	var sb strings.Builder
	sb.WriteString("Config{")
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := fmt.Sprintf("%v", v.Field(i).Interface())
		if field.Tag.Get("secret") == "true" && value != "" {
			value = "***REDACTED***"
		}
		sb.WriteString(field.Name + ": " + value)
		if i < t.NumField()-1 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString("}")
	return sb.String()
}
