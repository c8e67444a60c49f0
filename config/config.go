package config

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/fleet-health/internal/service"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	TLSCert     string `mapstructure:"tls_cert"`
	TLSKey      string `mapstructure:"tls_key"`
}

type HealthCheckConfig struct {
	// Interval between background cycles. "0s" disables them so cycles only
	// run when /healthcheck is hit.
	Interval           string `mapstructure:"interval"`
	Timeout            string `mapstructure:"timeout"`
	Scheme             string `mapstructure:"scheme"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	CredentialParam    string `mapstructure:"credential_param"`
	Credential         string `mapstructure:"credential"`
}

func (h HealthCheckConfig) IntervalDuration() time.Duration {
	return parseDuration(h.Interval)
}

func (h HealthCheckConfig) TimeoutDuration() time.Duration {
	return parseDuration(h.Timeout)
}

type RegistryConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type NotifierConfig struct {
	WebhookURL       string `mapstructure:"webhook_url"`
	Method           string `mapstructure:"method"`
	Username         string `mapstructure:"username"`
	EnvironmentLabel string `mapstructure:"environment_label"`
	Timeout          string `mapstructure:"timeout"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
	ResetTimeout     string `mapstructure:"reset_timeout"`
}

func (n NotifierConfig) TimeoutDuration() time.Duration {
	return parseDuration(n.Timeout)
}

func (n NotifierConfig) ResetTimeoutDuration() time.Duration {
	return parseDuration(n.ResetTimeout)
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server      ServerConfig         `mapstructure:"server"`
	HealthCheck HealthCheckConfig    `mapstructure:"health_check"`
	Registry    RegistryConfig       `mapstructure:"registry"`
	RosterFile  string               `mapstructure:"roster_file"`
	Services    []service.Descriptor `mapstructure:"services"`
	Notifier    NotifierConfig       `mapstructure:"notifier"`
	Logging     LoggingConfig        `mapstructure:"logging"`
}

// Load reads configuration from path, or from config.yaml in ./config or the
// working directory when path is empty. Environment variables override file
// values, with "." replaced by "_" (HEALTH_CHECK_CREDENTIAL, ...).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.name", "fleet-health")
	v.SetDefault("server.version", "dev")
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("health_check.interval", "5m")
	v.SetDefault("health_check.timeout", "5s")
	v.SetDefault("health_check.scheme", "https")
	v.SetDefault("health_check.insecure_skip_verify", false)
	v.SetDefault("health_check.credential_param", "clientaccesskey")
	v.SetDefault("health_check.credential", "")
	v.SetDefault("registry.driver", DriverMemory)
	v.SetDefault("registry.dsn", "")
	v.SetDefault("roster_file", "")
	v.SetDefault("notifier.webhook_url", "")
	v.SetDefault("notifier.method", http.MethodPut)
	v.SetDefault("notifier.username", "Error notifier")
	v.SetDefault("notifier.environment_label", "")
	v.SetDefault("notifier.timeout", "5s")
	v.SetDefault("notifier.failure_threshold", 3)
	v.SetDefault("notifier.reset_timeout", "1m")
	v.SetDefault("logging.level", LogLevelInfo)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if cfg.Notifier.EnvironmentLabel == "" {
		cfg.Notifier.EnvironmentLabel = cfg.Server.Environment
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
					validation.Field(&sc.Name, validation.Required),
					validation.Field(&sc.TLSCert, validation.Required.When(sc.TLSKey != "")),
					validation.Field(&sc.TLSKey, validation.Required.When(sc.TLSCert != "")),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&hc.Scheme,
						validation.Required,
						validation.In("http", "https"),
					),
					validation.Field(&hc.CredentialParam, validation.Required),
				)
			}),
		),
		validation.Field(&c.Registry,
			validation.Required,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RegistryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RegistryConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.Driver,
						validation.Required,
						validation.In(DriverMemory, DriverSQLite),
					),
					validation.Field(&rc.DSN, validation.Required.When(rc.Driver == DriverSQLite)),
				)
			}),
		),
		validation.Field(&c.Services,
			validation.Each(validation.By(validateDescriptor)),
			validation.By(validateUniqueNames),
		),
		validation.Field(&c.Notifier,
			validation.Required,
			validation.By(func(value interface{}) error {
				nc, ok := value.(NotifierConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a NotifierConfig")
				}
				return validation.ValidateStruct(&nc,
					validation.Field(&nc.WebhookURL, is.URL),
					validation.Field(&nc.Method,
						validation.Required,
						validation.In(http.MethodPut, http.MethodPost),
					),
					validation.Field(&nc.Timeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&nc.FailureThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&nc.ResetTimeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

func validatePositiveDuration(value interface{}) error {
	if err := validateDuration(value); err != nil {
		return err
	}
	if d, _ := time.ParseDuration(value.(string)); d == 0 {
		return validation.NewError("validation_zero_duration", "must be greater than zero")
	}

	return nil
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
