package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Env struct {
	DevLogging bool
	ResultsDir string
}

type Config struct {
	ConfigPath string
}

const (
	// EnvDevLogging enabled verbose & console logging
	EnvDevLogging = "DEV_LOGGING"

	// EnvResultsDir overrides the directory batch results are written to
	EnvResultsDir = "SALVO_RESULTS_DIR"

	// EnvFile is loaded, when present, before the environment is parsed
	EnvFile = ".env"
)

type envContextKey struct{}

// ParseEnv reads the process environment after applying EnvFile.
// Variables already set in the process take precedence over the file.
func ParseEnv() (Env, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, err
	}

	return Env{
		DevLogging: boolEnv(EnvDevLogging),
		ResultsDir: os.Getenv(EnvResultsDir),
	}, nil
}

func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envContextKey{}, env)
}

func EnvFromContext(ctx context.Context) Env {
	if env, ok := ctx.Value(envContextKey{}).(Env); ok {
		return env
	}

	return Env{}
}

func boolEnv(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
