package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "BULKMAIL_"

// Load reads configFile over Default, applies environment overrides and validates the result.
// Env files that do not exist are skipped, values already set in the environment win over them.
func Load(configFile string, envFiles ...string) (*Config, error) {
	cfg := Default()

	fileContent, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error read file config %s: %w", configFile, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(fileContent))
	dec.KnownFields(false)
	if err = dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error decode config %s: %w", configFile, err)
	}

	for _, f := range envFiles {
		if err = godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error load env file %s: %w", f, err)
		}
	}

	if err = ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err = validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err = cfg.check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides cfg with BULKMAIL_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) (err error) {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	num := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}

		n, _err := strconv.Atoi(strings.TrimSpace(v))
		if _err != nil {
			err = fmt.Errorf("env %s%s: %w", EnvPrefix, name, _err)
			return
		}

		*dst = n
	}

	dur := func(name string, dst *time.Duration) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}

		d, _err := time.ParseDuration(strings.TrimSpace(v))
		if _err != nil {
			err = fmt.Errorf("env %s%s: %w", EnvPrefix, name, _err)
			return
		}

		*dst = d
	}

	str("LOG_LEVEL", &cfg.App.LogLevel)
	num("HTTP_PORT", &cfg.Transport.HTTP.Port)
	str("STORE_TYPE", &cfg.Store.Type)
	str("STORE_REDIS", &cfg.Store.RedisKey)
	str("HISTORY_DB", &cfg.History.DBLabel)
	str("SUBMITTER_TYPE", &cfg.Submitter.Type)
	str("SUBMITTER_ENDPOINT", &cfg.Submitter.Endpoint)
	dur("SUBMITTER_TIMEOUT", &cfg.Submitter.Timeout)
	str("SMTP_HOST", &cfg.Submitter.SMTP.Host)
	num("SMTP_PORT", &cfg.Submitter.SMTP.Port)
	str("SMTP_TLS_MODE", &cfg.Submitter.SMTP.TLSMode)
	num("WORKER_NUM", &cfg.Worker.Num)
	str("JAEGER_ENDPOINT", &cfg.Tracer.JaegerEndpoint)
	return
}

// check covers rules that span sections.
func (c Config) check() error {
	if c.Submitter.Type == SubmitterSMTP && (c.Submitter.SMTP.Host == "" || c.Submitter.SMTP.Port <= 0) {
		return fmt.Errorf("submitter type smtp needs smtp.host and smtp.port")
	}

	if c.Store.Type == StoreRedis {
		if _, ok := c.Redis[c.Store.RedisKey]; !ok {
			return fmt.Errorf("store redis key %q is not defined in redis section", c.Store.RedisKey)
		}
	}

	if c.History.DBLabel != "" {
		res, ok := c.DatabaseResources[c.History.DBLabel]
		if !ok || res.Disable {
			return fmt.Errorf("history database %q is not defined or disabled", c.History.DBLabel)
		}
	}

	return nil
}
