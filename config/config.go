// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/frame/common/parallel"
	"github.com/gorse-io/frame/dataset"
	"github.com/gorse-io/frame/dataset/text"
	"github.com/gorse-io/frame/estimator"
	"github.com/gorse-io/frame/storage/blob"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config is the configuration of frame-compat.
type Config struct {
	Compat    CompatConfig     `mapstructure:"compat"`
	Train     estimator.Config `mapstructure:"train"`
	Embedding EmbeddingConfig  `mapstructure:"embedding"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Blob      BlobConfig       `mapstructure:"blob"`
	Search    SearchConfig     `mapstructure:"search"`
	Tracing   TracingConfig    `mapstructure:"tracing"`
}

// CompatConfig configures the synthetic dataset and the backbone used by compatibility runs.
type CompatConfig struct {
	NumRows       int    `mapstructure:"num_rows" validate:"gte=3"`
	Channels      int    `mapstructure:"channels" validate:"gt=0"`
	NumLayers     int    `mapstructure:"num_layers" validate:"gt=0"`
	Normalization string `mapstructure:"normalization" validate:"oneof=layer_norm batch_norm none"`
	Full          bool   `mapstructure:"full"`
	Seed          int64  `mapstructure:"seed"`
}

type EmbeddingConfig struct {
	Provider          string            `mapstructure:"provider" validate:"oneof=hash openai"`
	Dimensions        int               `mapstructure:"dimensions" validate:"gt=0"`
	BatchSize         int               `mapstructure:"batch_size" validate:"gte=0"`
	NumWorkers        int               `mapstructure:"num_workers" validate:"gt=0"`
	RequestsPerMinute int               `mapstructure:"requests_per_minute" validate:"gte=0"`
	TokensPerMinute   int               `mapstructure:"tokens_per_minute" validate:"gte=0"`
	OpenAI            text.OpenAIConfig `mapstructure:"openai"`
}

type DatabaseConfig struct {
	MetaStore string `mapstructure:"meta_store" validate:"required"`
}

// BlobConfig configures where checkpoints are uploaded. An empty location disables uploads.
type BlobConfig struct {
	Location    string `mapstructure:"location"`
	blob.Config `mapstructure:",squash"`
}

type SearchConfig struct {
	Trials int `mapstructure:"trials" validate:"gt=0"`
}

type TracingConfig struct {
	EnableTracing     bool    `mapstructure:"enable_tracing"`
	Exporter          string  `mapstructure:"exporter" validate:"oneof=zipkin otlp otlphttp"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	Sampler           string  `mapstructure:"sampler" validate:"oneof=always never ratio"`
	Ratio             float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

func GetDefaultConfig() *Config {
	train := estimator.DefaultConfig()
	train.MaxEpochs = 2
	train.BatchSize = 3
	return &Config{
		Compat: CompatConfig{
			NumRows:       30,
			Channels:      8,
			NumLayers:     3,
			Normalization: "layer_norm",
		},
		Train: train,
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Dimensions: 8,
			NumWorkers: 1,
			OpenAI: text.OpenAIConfig{
				BaseURL:  "https://api.openai.com/v1",
				Model:    "text-embedding-3-small",
				MaxTries: 3,
			},
		},
		Database: DatabaseConfig{
			MetaStore: "sqlite://frame.db",
		},
		Search: SearchConfig{
			Trials: 10,
		},
		Tracing: TracingConfig{
			Exporter: "otlp",
			Sampler:  "always",
			Ratio:    1,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [compat]
	v.SetDefault("compat.num_rows", defaultConfig.Compat.NumRows)
	v.SetDefault("compat.channels", defaultConfig.Compat.Channels)
	v.SetDefault("compat.num_layers", defaultConfig.Compat.NumLayers)
	v.SetDefault("compat.normalization", defaultConfig.Compat.Normalization)
	v.SetDefault("compat.full", defaultConfig.Compat.Full)
	v.SetDefault("compat.seed", defaultConfig.Compat.Seed)
	// [train]
	v.SetDefault("train.max_epochs", defaultConfig.Train.MaxEpochs)
	v.SetDefault("train.batch_size", defaultConfig.Train.BatchSize)
	v.SetDefault("train.lr", defaultConfig.Train.Lr)
	v.SetDefault("train.optimizer", defaultConfig.Train.Optimizer)
	v.SetDefault("train.weight_decay", defaultConfig.Train.WeightDecay)
	v.SetDefault("train.verbose", defaultConfig.Train.Verbose)
	v.SetDefault("train.valid_split", defaultConfig.Train.ValidSplit)
	v.SetDefault("train.shuffle", defaultConfig.Train.Shuffle)
	v.SetDefault("train.patience", defaultConfig.Train.Patience)
	v.SetDefault("train.seed", defaultConfig.Train.Seed)
	// [embedding]
	v.SetDefault("embedding.provider", defaultConfig.Embedding.Provider)
	v.SetDefault("embedding.dimensions", defaultConfig.Embedding.Dimensions)
	v.SetDefault("embedding.batch_size", defaultConfig.Embedding.BatchSize)
	v.SetDefault("embedding.num_workers", defaultConfig.Embedding.NumWorkers)
	v.SetDefault("embedding.requests_per_minute", defaultConfig.Embedding.RequestsPerMinute)
	v.SetDefault("embedding.tokens_per_minute", defaultConfig.Embedding.TokensPerMinute)
	v.SetDefault("embedding.openai.base_url", defaultConfig.Embedding.OpenAI.BaseURL)
	v.SetDefault("embedding.openai.auth_token", defaultConfig.Embedding.OpenAI.AuthToken)
	v.SetDefault("embedding.openai.model", defaultConfig.Embedding.OpenAI.Model)
	v.SetDefault("embedding.openai.dimensions", defaultConfig.Embedding.OpenAI.Dimensions)
	v.SetDefault("embedding.openai.cache_ttl", defaultConfig.Embedding.OpenAI.CacheTTL)
	v.SetDefault("embedding.openai.max_tries", defaultConfig.Embedding.OpenAI.MaxTries)
	// [database]
	v.SetDefault("database.meta_store", defaultConfig.Database.MetaStore)
	// [blob]
	v.SetDefault("blob.location", defaultConfig.Blob.Location)
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.use_ssl", false)
	v.SetDefault("blob.gcs.credentials_file", "")
	v.SetDefault("blob.azure.connection_string", "")
	v.SetDefault("blob.azure.account_name", "")
	v.SetDefault("blob.azure.account_key", "")
	v.SetDefault("blob.azure.endpoint", "")
	// [search]
	v.SetDefault("search.trials", defaultConfig.Search.Trials)
	// [tracing]
	v.SetDefault("tracing.enable_tracing", defaultConfig.Tracing.EnableTracing)
	v.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	v.SetDefault("tracing.collector_endpoint", defaultConfig.Tracing.CollectorEndpoint)
	v.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	v.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

type environmentVariable struct {
	key string
	env string
}

var environmentVariables = []environmentVariable{
	{"database.meta_store", "FRAME_META_STORE"},
	{"blob.location", "FRAME_BLOB_LOCATION"},
	{"blob.s3.endpoint", "S3_ENDPOINT"},
	{"blob.s3.access_key_id", "S3_ACCESS_KEY_ID"},
	{"blob.s3.secret_access_key", "S3_SECRET_ACCESS_KEY"},
	{"blob.gcs.credentials_file", "GCS_CREDENTIALS_FILE"},
	{"blob.azure.connection_string", "AZURE_STORAGE_CONNECTION_STRING"},
	{"blob.azure.account_name", "AZURE_STORAGE_ACCOUNT"},
	{"blob.azure.account_key", "AZURE_STORAGE_KEY"},
	{"embedding.openai.auth_token", "OPENAI_API_KEY"},
	{"embedding.openai.base_url", "OPENAI_BASE_URL"},
}

func bindEnv(v *viper.Viper) error {
	for _, binding := range environmentVariables {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefault(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	// Any other key can be overridden by FRAME_<SECTION>_<KEY>.
	v.SetEnvPrefix("FRAME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// LoadConfig reads the configuration from a TOML file. An empty path loads
// the defaults overridden by environment variables.
func LoadConfig(path string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err = v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "read config %s", path)
		}
	}
	var cfg Config
	if err = v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "config")
	}
	return nil
}

// TextEmbedder creates the embedder for text columns and installs the
// embedding rate limits.
func (config *EmbeddingConfig) TextEmbedder() (dataset.TextEmbedderConfig, error) {
	parallel.InitEmbeddingLimiters(config.RequestsPerMinute, config.TokensPerMinute)
	var (
		embedder dataset.TextEmbedder
		err      error
	)
	switch config.Provider {
	case "openai":
		cfg := config.OpenAI
		if cfg.Dimensions == 0 {
			cfg.Dimensions = config.Dimensions
		}
		embedder, err = text.NewOpenAIEmbedder(cfg)
	default:
		embedder, err = text.NewHashTextEmbedder(config.Dimensions)
	}
	if err != nil {
		return dataset.TextEmbedderConfig{}, errors.Trace(err)
	}
	return dataset.TextEmbedderConfig{Embedder: embedder, BatchSize: config.BatchSize}, nil
}

// NewTracerProvider creates a tracer provider exporting spans to the
// collector. A no-op provider is returned if tracing is disabled.
func (config *TracingConfig) NewTracerProvider() (trace.TracerProvider, error) {
	if !config.EnableTracing {
		return noop.NewTracerProvider(), nil
	}

	var exporter tracesdk.SpanExporter
	var err error
	switch config.Exporter {
	case "zipkin":
		exporter, err = zipkin.New(config.CollectorEndpoint)
	case "otlp":
		client := otlptracegrpc.NewClient(otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(config.CollectorEndpoint))
		exporter, err = otlptrace.New(context.Background(), client)
	case "otlphttp":
		client := otlptracehttp.NewClient(otlptracehttp.WithInsecure(), otlptracehttp.WithEndpoint(config.CollectorEndpoint))
		exporter, err = otlptrace.New(context.Background(), client)
	default:
		return nil, errors.NotSupportedf("exporter %s", config.Exporter)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	var sampler tracesdk.Sampler
	switch config.Sampler {
	case "always":
		sampler = tracesdk.AlwaysSample()
	case "never":
		sampler = tracesdk.NeverSample()
	case "ratio":
		sampler = tracesdk.TraceIDRatioBased(config.Ratio)
	default:
		return nil, errors.NotSupportedf("sampler %s", config.Sampler)
	}

	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(sampler),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "frame-compat"),
		)),
	), nil
}
