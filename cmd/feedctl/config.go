package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "feedctl"
	configType = "yaml"
	envPrefix  = "FEEDCTL"

	keyAPIURL      = "api.url"
	keyAPIToken    = "api.token"
	keyAPITimeout  = "api.timeout"
	keySessionFile = "api.session_file"
	keyNamespace   = "cache.namespace"
	keyProvider    = "cache.provider"
	keyCodec       = "cache.codec"
	keySQLitePath  = "cache.sqlite_path"
	keyRedisAddr   = "cache.redis_addr"
	keyPersistTTL  = "cache.persist_ttl"
	keyLogBackend  = "log.backend"
	keyLogLevel    = "log.level"
)

type config struct {
	APIURL      string
	Token       string
	Timeout     time.Duration
	SessionFile string

	Namespace  string
	Provider   string // none|ristretto|bigcache|redis|sqlite
	Codec      string // json|cbor|msgpack
	SQLitePath string
	RedisAddr  string
	PersistTTL time.Duration

	LogBackend string // zap|logrus|zerolog|slog
	LogLevel   string
}

// loadConfig reads feedctl.yaml from path, or from the working directory and
// $HOME/.config/feedctl when path is empty. A missing file is not an error.
// FEEDCTL_* variables override the file, e.g. FEEDCTL_API_URL.
func loadConfig(path string) (config, error) {
	v := viper.New()
	dir := defaultConfigDir()
	v.SetDefault(keyAPIURL, "http://localhost:5000")
	v.SetDefault(keyAPITimeout, 15*time.Second)
	v.SetDefault(keySessionFile, filepath.Join(dir, "session"))
	v.SetDefault(keyNamespace, "feedctl")
	v.SetDefault(keyProvider, "none")
	v.SetDefault(keyCodec, "json")
	v.SetDefault(keySQLitePath, filepath.Join(dir, "cache.db"))
	v.SetDefault(keyRedisAddr, "localhost:6379")
	v.SetDefault(keyPersistTTL, 24*time.Hour)
	v.SetDefault(keyLogBackend, "zap")
	v.SetDefault(keyLogLevel, "warn")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return config{}, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return config{
		APIURL:      v.GetString(keyAPIURL),
		Token:       v.GetString(keyAPIToken),
		Timeout:     v.GetDuration(keyAPITimeout),
		SessionFile: v.GetString(keySessionFile),
		Namespace:   v.GetString(keyNamespace),
		Provider:    strings.ToLower(v.GetString(keyProvider)),
		Codec:       strings.ToLower(v.GetString(keyCodec)),
		SQLitePath:  v.GetString(keySQLitePath),
		RedisAddr:   v.GetString(keyRedisAddr),
		PersistTTL:  v.GetDuration(keyPersistTTL),
		LogBackend:  strings.ToLower(v.GetString(keyLogBackend)),
		LogLevel:    strings.ToLower(v.GetString(keyLogLevel)),
	}, nil
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "feedctl")
}

// readSession returns the token saved by `feedctl login`, or "".
func readSession(path string) string {
	if path == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func writeSession(path, token string) error {
	if path == "" {
		return nil
	}
	if token == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}
