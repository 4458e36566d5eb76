package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server        ServerConfig   `env:",prefix=SERVER_"`
	Postgres      PostgresConfig `env:",prefix=POSTGRES_"`
	Redis         RedisConfig    `env:",prefix=REDIS_"`
	JWT           JWTConfig      `env:",prefix=JWT_"`
	Session       SessionConfig  `env:",prefix=SESSION_"`
	Tokens        TokenConfig    `env:",prefix=TOKEN_"`
	SMTP          SMTPConfig     `env:",prefix=SMTP_"`
	Security      SecurityConfig `env:",prefix="`
	CORS          CORSConfig     `env:",prefix=CORS_"`
	PublicBaseURL string         `env:"PUBLIC_BASE_URL,default=http://localhost:3000"`
	Env           string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=account_service"`
	Password string `env:"PASSWORD,default=account_service_password"`
	DBName   string `env:"DB,default=account_service_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret            string   `env:"SECRET,required"`
	AccessTokenExpiry Duration `env:"ACCESS_TOKEN_EXPIRY,default=15m"`
}

// SessionConfig controls refresh session lifetimes. TTL is a lenient
// "<int><s|m|h|d>" string resolved through ParseTTL at wiring time, so a
// bad value degrades to the 7 day default instead of refusing to start.
type SessionConfig struct {
	TTL             string   `env:"TTL,default=7d"`
	CleanupInterval Duration `env:"CLEANUP_INTERVAL,default=1h"`
}

type TokenConfig struct {
	VerificationExpiry Duration `env:"VERIFICATION_EXPIRY,default=24h"`
	ResetExpiry        Duration `env:"RESET_EXPIRY,default=1h"`
}

type SMTPConfig struct {
	Host     string `env:"HOST,default="`
	Port     int    `env:"PORT,default=587"`
	User     string `env:"USER,default="`
	Password string `env:"PASSWORD,default="`
	From     string `env:"FROM,default=no-reply@hobbystash.app"`
}

type SecurityConfig struct {
	BCryptCost int `env:"BCRYPT_COST,default=12"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// URL returns the PostgreSQL connection URL used by the migration runner
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load loads configuration from environment variables.
// There is deliberately no fallback signing secret: a process without a
// usable JWT_SECRET must not come up.
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(config.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}
