package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Level string `yaml:"level"`

	Http struct {
		Addr           string `yaml:"addr"`
		GraphqlPath    string `yaml:"graphql_path"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
	} `yaml:"http"`

	Mongo struct {
		URI    string `yaml:"uri"`
		DB     string `yaml:"db"`
		Direct bool   `yaml:"direct"`
	} `yaml:"mongo"`

	Redis struct {
		Addr         string        `yaml:"addr"`
		Username     string        `yaml:"username"`
		Password     string        `yaml:"password"`
		Database     int           `yaml:"database"`
		KeyPrefix    string        `yaml:"key_prefix"`
		UserCacheTTL time.Duration `yaml:"user_cache_ttl"`
	} `yaml:"redis"`

	Credentials struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"credentials"`

	Loader struct {
		Wait     time.Duration `yaml:"wait"`
		MaxBatch int           `yaml:"max_batch"`
	} `yaml:"loader"`

	Auth struct {
		RoleCacheTTL time.Duration `yaml:"role_cache_ttl"`
	} `yaml:"auth"`
}

func Default() *Config {
	cfg := &Config{Level: "info"}
	cfg.Http.Addr = "0.0.0.0:3000"
	cfg.Http.GraphqlPath = "/v1/gql"
	cfg.Http.MetricsEnabled = true
	cfg.Mongo.URI = "mongodb://localhost:27017"
	cfg.Mongo.DB = "aiusage"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.KeyPrefix = "aiusage"
	cfg.Redis.UserCacheTTL = 5 * time.Minute
	cfg.Loader.MaxBatch = 250
	cfg.Auth.RoleCacheTTL = 30 * time.Second

	return cfg
}

// New reads the yaml file at path (if any) over the defaults, then applies AIUSAGE_* environment
// variables. Local .env files are loaded first so they count as environment.
func New(path string) (*Config, error) {
	loadDotEnv()

	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err = yaml.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	return cfg, nil
}

func loadDotEnv() {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}

		if err := godotenv.Load(file); err != nil {
			zap.S().Warnw("config, failed to load env file", "file", file, "error", err)
		}
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Level, "AIUSAGE_LEVEL")
	setString(&cfg.Http.Addr, "AIUSAGE_HTTP_ADDR")
	setString(&cfg.Http.GraphqlPath, "AIUSAGE_HTTP_GRAPHQL_PATH")
	setBool(&cfg.Http.MetricsEnabled, "AIUSAGE_HTTP_METRICS_ENABLED")
	setString(&cfg.Mongo.URI, "AIUSAGE_MONGO_URI")
	setString(&cfg.Mongo.DB, "AIUSAGE_MONGO_DB")
	setBool(&cfg.Mongo.Direct, "AIUSAGE_MONGO_DIRECT")
	setString(&cfg.Redis.Addr, "AIUSAGE_REDIS_ADDR")
	setString(&cfg.Redis.Username, "AIUSAGE_REDIS_USERNAME")
	setString(&cfg.Redis.Password, "AIUSAGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.Database, "AIUSAGE_REDIS_DATABASE")
	setString(&cfg.Redis.KeyPrefix, "AIUSAGE_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.UserCacheTTL, "AIUSAGE_REDIS_USER_CACHE_TTL")
	setString(&cfg.Credentials.JWTSecret, "AIUSAGE_CREDENTIALS_JWT_SECRET")
	setDuration(&cfg.Loader.Wait, "AIUSAGE_LOADER_WAIT")
	setInt(&cfg.Loader.MaxBatch, "AIUSAGE_LOADER_MAX_BATCH")
	setDuration(&cfg.Auth.RoleCacheTTL, "AIUSAGE_AUTH_ROLE_CACHE_TTL")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		*dst = v
	}
}
