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

	"github.com/chewxy/math32"
	"github.com/gorse-io/frame/dataset"
	"github.com/stretchr/testify/assert"
)

var _ dataset.TextEmbedder = (*HashTextEmbedder)(nil)

func TestHashTextEmbedder(t *testing.T) {
	embedder, err := NewHashTextEmbedder(8)
	assert.NoError(t, err)
	assert.Equal(t, 8, embedder.Dim())

	texts := []string{"hello world", "hello world", "a completely different sentence", ""}
	embeddings, err := embedder.Embed(context.Background(), texts)
	assert.NoError(t, err)
	assert.Len(t, embeddings, 4)
	for _, e := range embeddings {
		assert.Len(t, e, 8)
	}
	// deterministic
	assert.Equal(t, embeddings[0], embeddings[1])
	assert.NotEqual(t, embeddings[0], embeddings[2])
	// normalized
	var norm float32
	for _, x := range embeddings[2] {
		norm += x * x
	}
	assert.InDelta(t, 1, math32.Sqrt(norm), 1e-5)
	// empty text
	assert.Equal(t, make([]float32, 8), embeddings[3])

	_, err = NewHashTextEmbedder(0)
	assert.Error(t, err)
}

func TestHashTextEmbedderCancel(t *testing.T) {
	embedder, err := NewHashTextEmbedder(4)
	assert.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = embedder.Embed(ctx, []string{"hello"})
	assert.ErrorIs(t, err, context.Canceled)
}
