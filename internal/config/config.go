package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config centraliza la configuración del servicio.
type Config struct {
	AppEnv         string `env:"APP_ENV" envDefault:"development"`
	HTTPPort       string `env:"HTTP_PORT" envDefault:"8080"`
	AppBaseURL     string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	BcryptCost               int           `env:"BCRYPT_COST" envDefault:"12"`
	TOTPIssuer               string        `env:"TOTP_ISSUER" envDefault:"SplitShifts App"`
	TOTPClearSecretOnDisable bool          `env:"TOTP_CLEAR_SECRET_ON_DISABLE" envDefault:"true"`
	VerificationTokenTTL     time.Duration `env:"VERIFICATION_TOKEN_TTL" envDefault:"24h"`
	ResetTokenTTL            time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"SplitShifts"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	IssuanceLimitWindow time.Duration `env:"ISSUANCE_LIMIT_WINDOW" envDefault:"15m"`
	IssuanceLimitMax    int           `env:"ISSUANCE_LIMIT_MAX" envDefault:"3"`
	LoginLimitWindow    time.Duration `env:"LOGIN_LIMIT_WINDOW" envDefault:"15m"`
	LoginLimitMax       int           `env:"LOGIN_LIMIT_MAX" envDefault:"10"`
	HTTPRatePerMinute   int           `env:"HTTP_RATE_PER_MINUTE" envDefault:"60"`
	HTTPRateBurst       int           `env:"HTTP_RATE_BURST" envDefault:"20"`

	// JWTSecretGenerated indica que JWT_SECRET faltaba y se generó uno al azar.
	JWTSecretGenerated bool
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	if cfg.JWTSecret == "" && !cfg.Production() {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWTSecret = secret
		cfg.JWTSecretGenerated = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Production indica si el proceso corre con APP_ENV=production.
func (c *Config) Production() bool {
	return c.AppEnv == EnvProduction
}

// Validate aplica las reglas que dependen del entorno.
func (c *Config) Validate() error {
	var errs []error
	switch c.AppEnv {
	case EnvDevelopment, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.AppEnv))
	}
	if c.BcryptCost < 10 || c.BcryptCost > 14 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 10 and 14, got %d", c.BcryptCost))
	}
	if c.VerificationTokenTTL <= 0 || c.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	base, err := url.Parse(c.AppBaseURL)
	if err != nil || base.Host == "" {
		errs = append(errs, fmt.Errorf("APP_BASE_URL is not a valid absolute URL: %q", c.AppBaseURL))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Production() {
		if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters in production"))
		}
		if base != nil && base.Scheme != "https" {
			errs = append(errs, errors.New("APP_BASE_URL must use https in production"))
		}
	}
	return errors.Join(errs...)
}

// randomSecret sirve solo en desarrollo: las sesiones no sobreviven un reinicio.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
