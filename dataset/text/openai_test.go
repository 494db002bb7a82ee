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
	"testing"
	"time"

	"github.com/gorse-io/frame/common/mock"
	"github.com/gorse-io/frame/common/parallel"
	"github.com/gorse-io/frame/dataset"
	"github.com/stretchr/testify/suite"
)

var _ dataset.TextEmbedder = (*OpenAIEmbedder)(nil)

type OpenAIEmbedderTestSuite struct {
	suite.Suite
	server *mock.OpenAIServer
}

func (suite *OpenAIEmbedderTestSuite) SetupSuite() {
	suite.server = mock.NewOpenAIServer()
	go func() {
		_ = suite.server.Start()
	}()
	suite.server.Ready()
}

func (suite *OpenAIEmbedderTestSuite) TearDownSuite() {
	suite.NoError(suite.server.Close())
}

func (suite *OpenAIEmbedderTestSuite) SetupTest() {
	suite.server.Dimensions(4)
	suite.server.Fail(0)
}

func (suite *OpenAIEmbedderTestSuite) newEmbedder() *OpenAIEmbedder {
	embedder, err := NewOpenAIEmbedder(OpenAIConfig{
		BaseURL:    suite.server.BaseURL(),
		AuthToken:  suite.server.AuthToken(),
		Model:      "mxbai-embed-large",
		Dimensions: 4,
		CacheTTL:   time.Minute,
	})
	suite.NoError(err)
	return embedder
}

func (suite *OpenAIEmbedderTestSuite) TestEmbed() {
	embedder := suite.newEmbedder()
	before := suite.server.Requests()
	embeddings, err := embedder.Embed(context.Background(), []string{"a", "bcd", "a"})
	suite.NoError(err)
	suite.Equal([][]float32{{1, 1, 0, 0}, {3, 1, 0, 0}, {1, 1, 0, 0}}, embeddings)
	suite.Equal(before+1, suite.server.Requests())

	// cached texts are not requested again
	embeddings, err = embedder.Embed(context.Background(), []string{"bcd"})
	suite.NoError(err)
	suite.Equal([][]float32{{3, 1, 0, 0}}, embeddings)
	suite.Equal(before+1, suite.server.Requests())
}

func (suite *OpenAIEmbedderTestSuite) TestRetry() {
	embedder := suite.newEmbedder()
	suite.server.Fail(2)
	before := suite.server.Requests()
	factor := parallel.EmbeddingBackOff.Factor()
	embeddings, err := embedder.Embed(context.Background(), []string{"retry"})
	suite.NoError(err)
	suite.Equal([][]float32{{5, 1, 0, 0}}, embeddings)
	suite.Equal(before+3, suite.server.Requests())
	// doubled twice by throttling, recovered once
	suite.Equal(factor*4-1, parallel.EmbeddingBackOff.Factor())
}

func (suite *OpenAIEmbedderTestSuite) TestTooManyFailures() {
	embedder := suite.newEmbedder()
	suite.server.Fail(10)
	_, err := embedder.Embed(context.Background(), []string{"fail"})
	suite.Error(err)
}

func (suite *OpenAIEmbedderTestSuite) TestDimensionMismatch() {
	embedder := suite.newEmbedder()
	suite.server.Dimensions(3)
	_, err := embedder.Embed(context.Background(), []string{"mismatch"})
	suite.Error(err)
}

func (suite *OpenAIEmbedderTestSuite) TestInvalidConfig() {
	_, err := NewOpenAIEmbedder(OpenAIConfig{Model: "m"})
	suite.Error(err)
	_, err = NewOpenAIEmbedder(OpenAIConfig{Dimensions: 4})
	suite.Error(err)
}

func (suite *OpenAIEmbedderTestSuite) TestMaterialize() {
	embedder := suite.newEmbedder()
	d, err := dataset.FakeDataset(dataset.FakeOptions{
		NumRows:      5,
		Stypes:       []dataset.Stype{dataset.TextEmbedded},
		TextEmbedder: &dataset.TextEmbedderConfig{Embedder: embedder, BatchSize: 2},
	})
	suite.NoError(err)
	suite.NoError(d.Materialize(context.Background()))
	suite.Equal([]int{4, 4}, d.TensorFrame().TextDims)
}

func TestOpenAIEmbedder(t *testing.T) {
	suite.Run(t, new(OpenAIEmbedderTestSuite))
}
