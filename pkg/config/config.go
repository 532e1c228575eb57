// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads pipeline configuration from the process
// environment. Unlike a file-first layout, every optional key has a
// default so the module runs in a container with no config file at all;
// MONGODB_URI and the Azure storage credentials have no default.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"barcode-pipeline/pkg/errors"
)

// Config is the full set of settings needed by cmd/worker, cmd/dispatcher
// and cmd/api.
type Config struct {
	Mongo      MongoConfig
	Azure      AzureConfig
	Gemini     GeminiConfig
	Worker     WorkerConfig
	Preprocess PreprocessConfig
	Log        LogConfig
	Retention  RetentionConfig
	ReviewAPI  ReviewAPIConfig
}

type MongoConfig struct {
	URI      string
	Database string
}

type AzureConfig struct {
	ConnectionString string
	AccountURL       string
	Container        string
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

type PreprocessConfig struct {
	MaxDimension    int
	DenoiseStrength int
}

type LogConfig struct {
	Level  string
	Format string
}

type RetentionConfig struct {
	Days int
}

type ReviewAPIConfig struct {
	Host string
	Port int
}

// Load reads configuration exclusively from the environment, applying
// documented defaults for everything spec.md §6 marks optional.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("mongodb_database", "ean-extraction")
	v.SetDefault("azure_storage_container", "images")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("gemini_max_tokens", 1024)
	v.SetDefault("gemini_temperature", 1.0)
	v.SetDefault("gemini_timeout", 30)
	v.SetDefault("worker_poll_interval", 5)
	v.SetDefault("worker_batch_size", 10)
	v.SetDefault("worker_max_retries", 3)
	v.SetDefault("preprocess_max_dimension", 2048)
	v.SetDefault("preprocess_denoise_strength", 10)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("retention_days", 90)
	v.SetDefault("review_ui_host", "0.0.0.0")
	v.SetDefault("review_ui_port", 8000)

	cfg := &Config{
		Mongo: MongoConfig{
			URI:      v.GetString("mongodb_uri"),
			Database: v.GetString("mongodb_database"),
		},
		Azure: AzureConfig{
			ConnectionString: v.GetString("azure_storage_connection_string"),
			AccountURL:       v.GetString("azure_storage_account_url"),
			Container:        v.GetString("azure_storage_container"),
		},
		Gemini: GeminiConfig{
			APIKey:      v.GetString("gemini_api_key"),
			Model:       v.GetString("gemini_model"),
			MaxTokens:   v.GetInt("gemini_max_tokens"),
			Temperature: v.GetFloat64("gemini_temperature"),
			Timeout:     time.Duration(v.GetInt("gemini_timeout")) * time.Second,
		},
		Worker: WorkerConfig{
			PollInterval: time.Duration(v.GetInt("worker_poll_interval")) * time.Second,
			BatchSize:    v.GetInt("worker_batch_size"),
			MaxRetries:   v.GetInt("worker_max_retries"),
		},
		Preprocess: PreprocessConfig{
			MaxDimension:    v.GetInt("preprocess_max_dimension"),
			DenoiseStrength: v.GetInt("preprocess_denoise_strength"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
		Retention: RetentionConfig{
			Days: v.GetInt("retention_days"),
		},
		ReviewAPI: ReviewAPIConfig{
			Host: v.GetString("review_ui_host"),
			Port: v.GetInt("review_ui_port"),
		},
	}

	if cfg.Mongo.URI == "" {
		return nil, errors.WithKind(errors.Wrap(errors.ErrInvalidArg, "MONGODB_URI is required"), errors.KindFatalConfig)
	}
	if cfg.Azure.ConnectionString == "" && cfg.Azure.AccountURL == "" {
		return nil, errors.WithKind(errors.Wrap(errors.ErrInvalidArg, "AZURE_STORAGE_CONNECTION_STRING or AZURE_STORAGE_ACCOUNT_URL is required"), errors.KindFatalConfig)
	}
	return cfg, nil
}
