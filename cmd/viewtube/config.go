package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/viewtube/viewtube/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Environment
	Environment string

	// Secrets to sign access and refresh tokens, one each
	AccessTokenSecret  string
	RefreshTokenSecret string

	// Token lifetimes; zero means the codec defaults apply
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Object storage for uploaded media
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3BaseEndpoint string
	MediaPublicURL string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
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
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", value, err)
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"ACCESS_TOKEN_SECRET":  setString(&c.AccessTokenSecret),
		"REFRESH_TOKEN_SECRET": setString(&c.RefreshTokenSecret),
		"ACCESS_TOKEN_TTL":     setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":    setDuration(&c.RefreshTokenTTL),
		"S3_REGION":            setString(&c.S3Region),
		"S3_BUCKET":            setString(&c.S3Bucket),
		"S3_ACCESS_KEY":        setString(&c.S3AccessKey),
		"S3_SECRET_KEY":        setString(&c.S3SecretKey),
		"S3_BASE_ENDPOINT":     setString(&c.S3BaseEndpoint),
		"MEDIA_PUBLIC_URL":     setString(&c.MediaPublicURL),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("viewtube", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.AccessTokenSecret, "access-secret", c.AccessTokenSecret, "Access token signing secret")
	fs.StringVar(&c.RefreshTokenSecret, "refresh-secret", c.RefreshTokenSecret, "Refresh token signing secret")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")

	return fs.Parse(args)
}

// Validate checks the options the service can't start without
// Missing ones are a fatal startup error, not a per-request failure
func (c *Config) Validate() error {
	required := map[string]string{
		"DATABASE_URI":         c.DatabaseDSN,
		"ACCESS_TOKEN_SECRET":  c.AccessTokenSecret,
		"REFRESH_TOKEN_SECRET": c.RefreshTokenSecret,
		"S3_REGION":            c.S3Region,
		"S3_BUCKET":            c.S3Bucket,
		"S3_ACCESS_KEY":        c.S3AccessKey,
		"S3_SECRET_KEY":        c.S3SecretKey,
		"MEDIA_PUBLIC_URL":     c.MediaPublicURL,
	}

	for key, value := range required {
		if value == "" {
			return fmt.Errorf("required option %s is not set", key)
		}
	}

	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	return nil
}
