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
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/emicklei/go-restful/v3"
	"github.com/sashabaranov/go-openai"
)

// OpenAIServer serves the embeddings endpoint of the OpenAI API. Each input
// string is embedded as [len(text), 1, 0, ..., 0] unless fixed embeddings are set.
type OpenAIServer struct {
	listener   net.Listener
	httpServer *http.Server
	authToken  string
	ready      chan struct{}

	mu             sync.Mutex
	mockEmbeddings []float32
	dimensions     int
	failures       int
	requests       atomic.Int64
}

func NewOpenAIServer() *OpenAIServer {
	s := &OpenAIServer{dimensions: 4}
	ws := new(restful.WebService)
	ws.Path("/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	ws.Route(ws.POST("embeddings").
		Reads(openai.EmbeddingRequestStrings{}).
		Writes(openai.EmbeddingResponse{}).
		To(s.embeddings))
	container := restful.NewContainer()
	container.Add(ws)
	s.httpServer = &http.Server{Handler: container}
	s.authToken = "ollama"
	s.ready = make(chan struct{})
	return s
}

func (s *OpenAIServer) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	close(s.ready)
	return s.httpServer.Serve(s.listener)
}

func (s *OpenAIServer) BaseURL() string {
	return fmt.Sprintf("http://%s/v1", s.listener.Addr().String())
}

func (s *OpenAIServer) AuthToken() string {
	return s.authToken
}

func (s *OpenAIServer) Ready() {
	<-s.ready
}

func (s *OpenAIServer) Close() error {
	return s.httpServer.Close()
}

// Embeddings fixes the embedding returned for every input.
func (s *OpenAIServer) Embeddings(embeddings []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mockEmbeddings = embeddings
}

// Dimensions sets the length of generated embeddings.
func (s *OpenAIServer) Dimensions(dim int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimensions = dim
}

// Fail makes the next n requests fail with 429 Too Many Requests.
func (s *OpenAIServer) Fail(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// Requests returns the number of embedding requests received.
func (s *OpenAIServer) Requests() int {
	return int(s.requests.Load())
}

func (s *OpenAIServer) embeddings(req *restful.Request, resp *restful.Response) {
	s.requests.Add(1)
	var r openai.EmbeddingRequestStrings
	err := req.ReadEntity(&r)
	if err != nil {
		_ = resp.WriteError(http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		_ = resp.WriteHeaderAndJson(http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{"message": "rate limit exceeded", "type": "rate_limit"},
		}, restful.MIME_JSON)
		return
	}
	data := make([]openai.Embedding, len(r.Input))
	for i, text := range r.Input {
		embedding := s.mockEmbeddings
		if embedding == nil {
			embedding = make([]float32, s.dimensions)
			embedding[0] = float32(len(text))
			if s.dimensions > 1 {
				embedding[1] = 1
			}
		}
		data[i] = openai.Embedding{Object: "embedding", Index: i, Embedding: embedding}
	}
	_ = resp.WriteEntity(openai.EmbeddingResponse{
		Object: "list",
		Data:   data,
		Model:  r.Model,
	})
}
