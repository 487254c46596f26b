package authcore

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig covers the environment-level configuration surface. The
// defaults mirror DefaultConfig(EnvProduction); the token secret has no
// default on purpose.
type envConfig struct {
	Environment string        `env:"AUTHCORE_ENV" env-default:"production"`
	TokenSecret string        `env:"AUTHCORE_TOKEN_SECRET"`
	AccessTTL   time.Duration `env:"AUTHCORE_ACCESS_TTL" env-default:"24h"`
	RefreshTTL  time.Duration `env:"AUTHCORE_REFRESH_TTL" env-default:"168h"`

	HashMemoryKB    uint32 `env:"AUTHCORE_HASH_MEMORY_KB" env-default:"0"`
	HashTime        uint32 `env:"AUTHCORE_HASH_TIME" env-default:"0"`
	HashParallelism uint8  `env:"AUTHCORE_HASH_PARALLELISM" env-default:"0"`

	LoginLimit  int           `env:"AUTHCORE_LOGIN_LIMIT" env-default:"5"`
	LoginWindow time.Duration `env:"AUTHCORE_LOGIN_WINDOW" env-default:"1m"`

	PasswordMinLength     int  `env:"AUTHCORE_PASSWORD_MIN_LENGTH" env-default:"8"`
	PasswordRequireUpper  bool `env:"AUTHCORE_PASSWORD_REQUIRE_UPPER" env-default:"true"`
	PasswordRequireLower  bool `env:"AUTHCORE_PASSWORD_REQUIRE_LOWER" env-default:"true"`
	PasswordRequireDigit  bool `env:"AUTHCORE_PASSWORD_REQUIRE_DIGIT" env-default:"true"`
	PasswordRequireSymbol bool `env:"AUTHCORE_PASSWORD_REQUIRE_SYMBOL" env-default:"false"`
}

// FromEnv builds a Config from AUTHCORE_* environment variables on top
// of the tier defaults, then validates it.
func FromEnv() (Config, error) {
	var ec envConfig
	if err := cleanenv.ReadEnv(&ec); err != nil {
		return Config{}, fmt.Errorf("config: read environment: %w", err)
	}

	cfg := DefaultConfig(ec.Environment)
	cfg.JWT.Secret = []byte(ec.TokenSecret)
	cfg.JWT.AccessTTL = ec.AccessTTL
	cfg.JWT.RefreshTTL = ec.RefreshTTL

	// Zero means "keep the tier default" so non-production tiers keep
	// their fast hashing parameters.
	if ec.HashMemoryKB > 0 {
		cfg.Password.Memory = ec.HashMemoryKB
	}
	if ec.HashTime > 0 {
		cfg.Password.Time = ec.HashTime
	}
	if ec.HashParallelism > 0 {
		cfg.Password.Parallelism = ec.HashParallelism
	}

	cfg.Throttle.LoginLimit = ec.LoginLimit
	cfg.Throttle.LoginWindow = ec.LoginWindow

	cfg.Password.MinLength = ec.PasswordMinLength
	cfg.Password.RequireUpper = ec.PasswordRequireUpper
	cfg.Password.RequireLower = ec.PasswordRequireLower
	cfg.Password.RequireDigit = ec.PasswordRequireDigit
	cfg.Password.RequireSymbol = ec.PasswordRequireSymbol

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
