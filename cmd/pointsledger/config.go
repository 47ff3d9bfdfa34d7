package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/apexrewards/pointsledger/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultRateLimit    = 100
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the pointsledger service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Actor tokens minted by the gateway are verified with this key
	SecretKey string

	// Environment
	Environment string

	// Redis address for the per-caller rate limiter. Empty disables limiting
	RedisAddr string

	// Requests per minute allowed per caller
	RateLimit int64

	// Kafka brokers for the audit stream. Empty disables publishing
	KafkaBrokers []string

	// Kafka topic for audit records
	KafkaTopic string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
		RateLimit:   defaultRateLimit,
		KafkaTopic:  "pointsledger.audit",
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt := func(o *int64) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
				*o = parsed
			}
		}
	}
	setList := func(o *[]string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = strings.Split(value, ",")
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":   setString(&c.ListenAddr),
		"DATABASE_URI":  setString(&c.DatabaseDSN),
		"SECRET_KEY":    setString(&c.SecretKey),
		"LOG_LEVEL":     setString(&c.LogLevel),
		"ENVIRONMENT":   setString(&c.Environment),
		"REDIS_ADDRESS": setString(&c.RedisAddr),
		"RATE_LIMIT":    setInt(&c.RateLimit),
		"KAFKA_BROKERS": setList(&c.KafkaBrokers),
		"KAFKA_TOPIC":   setString(&c.KafkaTopic),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("pointsledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address for rate limiting")
	fs.Int64Var(&c.RateLimit, "rate-limit", c.RateLimit, "Requests per minute allowed per caller")
	fs.StringSliceVar(&c.KafkaBrokers, "kafka-brokers", c.KafkaBrokers, "Kafka brokers for the audit stream")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", c.KafkaTopic, "Kafka topic for audit records")

	return fs.Parse(args)
}
