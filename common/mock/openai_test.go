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

package mock

import (
	"context"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/suite"
)

type OpenAITestSuite struct {
	suite.Suite
	server *OpenAIServer
	client *openai.Client
}

func (suite *OpenAITestSuite) SetupSuite() {
	// Start mock server
	suite.server = NewOpenAIServer()
	go func() {
		_ = suite.server.Start()
	}()
	suite.server.Ready()
	// Create client
	clientConfig := openai.DefaultConfig(suite.server.AuthToken())
	clientConfig.BaseURL = suite.server.BaseURL()
	suite.client = openai.NewClientWithConfig(clientConfig)
}

func (suite *OpenAITestSuite) TearDownSuite() {
	suite.NoError(suite.server.Close())
}

func (suite *OpenAITestSuite) TearDownTest() {
	suite.server.Embeddings(nil)
	suite.server.Fail(0)
}

func (suite *OpenAITestSuite) TestEmbeddings() {
	suite.server.Embeddings([]float32{1, 2, 3})
	resp, err := suite.client.CreateEmbeddings(
		context.Background(),
		openai.EmbeddingRequestStrings{
			Input: []string{"Hello"},
			Model: "mxbai-embed-large",
		},
	)
	suite.NoError(err)
	suite.Equal([]float32{1, 2, 3}, resp.Data[0].Embedding)
}

func (suite *OpenAITestSuite) TestGeneratedEmbeddings() {
	resp, err := suite.client.CreateEmbeddings(
		context.Background(),
		openai.EmbeddingRequestStrings{
			Input: []string{"a", "bcd"},
			Model: "mxbai-embed-large",
		},
	)
	suite.NoError(err)
	suite.Len(resp.Data, 2)
	suite.Equal([]float32{1, 1, 0, 0}, resp.Data[0].Embedding)
	suite.Equal([]float32{3, 1, 0, 0}, resp.Data[1].Embedding)
}

func (suite *OpenAITestSuite) TestFailures() {
	suite.server.Fail(1)
	before := suite.server.Requests()
	_, err := suite.client.CreateEmbeddings(
		context.Background(),
		openai.EmbeddingRequestStrings{Input: []string{"Hello"}, Model: "mxbai-embed-large"},
	)
	suite.Error(err)
	_, err = suite.client.CreateEmbeddings(
		context.Background(),
		openai.EmbeddingRequestStrings{Input: []string{"Hello"}, Model: "mxbai-embed-large"},
	)
	suite.NoError(err)
	suite.Equal(before+2, suite.server.Requests())
}

func TestOpenAITestSuite(t *testing.T) {
	suite.Run(t, new(OpenAITestSuite))
}
