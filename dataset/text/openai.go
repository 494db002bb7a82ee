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

package text

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorse-io/frame/common/log"
	"github.com/gorse-io/frame/common/parallel"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type OpenAIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AuthToken  string        `mapstructure:"auth_token"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	MaxTries   uint          `mapstructure:"max_tries"`
}

// OpenAIEmbedder embeds texts with an OpenAI compatible embeddings API.
// Embeddings are cached by text, requests are throttled by the embedding
// limiters of the parallel package and failed requests are retried with
// exponential backoff.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	maxTries   uint
	cache      *ttlcache.Cache[string, []float32]
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.NotValidf("embedding dimension %d", cfg.Dimensions)
	}
	if cfg.Model == "" {
		return nil, errors.NotValidf("empty embedding model")
	}
	clientConfig := openai.DefaultConfig(cfg.AuthToken)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	maxTries := cfg.MaxTries
	if maxTries == 0 {
		maxTries = 3
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxTries:   maxTries,
		cache:      ttlcache.New(ttlcache.WithTTL[string, []float32](ttl)),
	}, nil
}

func (e *OpenAIEmbedder) Dim() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	missing := lo.Uniq(lo.Filter(texts, func(text string, _ int) bool {
		return e.cache.Get(text) == nil
	}))
	if len(missing) > 0 {
		embeddings, err := e.request(ctx, missing)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for i, text := range missing {
			e.cache.Set(text, embeddings[i], ttlcache.DefaultTTL)
		}
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		item := e.cache.Get(text)
		if item == nil {
			return nil, errors.NotFoundf("embedding of text %d", i)
		}
		result[i] = item.Value()
	}
	return result, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	// Tokens are estimated as four characters each.
	tokens := lo.SumBy(texts, func(text string) int64 { return int64(len(text)/4 + 1) })
	wait := max(parallel.EmbeddingRequestsLimiter.Take(1), parallel.EmbeddingTokensLimiter.Take(tokens))
	// slow down while the endpoint keeps throttling
	wait *= time.Duration(parallel.EmbeddingBackOff.Factor())
	if wait > 0 {
		select {
		case <-ctx.Done():
			return nil, errors.Trace(ctx.Err())
		case <-time.After(wait):
		}
	}

	resp, err := backoff.Retry(ctx, func() (openai.EmbeddingResponse, error) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      texts,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimensions,
		})
		if err != nil {
			if !retryable(err) {
				return resp, backoff.Permanent(err)
			}
			if throttled(err) {
				parallel.EmbeddingBackOff.BackOff()
			}
			log.Logger().Warn("failed to create embeddings", zap.Int("num_texts", len(texts)), zap.Error(err))
			return resp, err
		}
		parallel.EmbeddingBackOff.Recover()
		return resp, nil
	}, backoff.WithBackOff(newExponentialBackOff()), backoff.WithMaxTries(e.maxTries))
	if err != nil {
		return nil, errors.Annotate(err, "failed to create embeddings")
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	embeddings := make([][]float32, len(texts))
	for i, data := range resp.Data {
		index := data.Index
		if index < 0 || index >= len(texts) || embeddings[index] != nil {
			index = i
		}
		if len(data.Embedding) != e.dimensions {
			return nil, errors.NotValidf("embedding with %d dimensions, expected %d", len(data.Embedding), e.dimensions)
		}
		embeddings[index] = data.Embedding
	}
	return embeddings, nil
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

func throttled(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// retryable reports whether a request might succeed later.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return true
}
