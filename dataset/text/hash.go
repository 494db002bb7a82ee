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
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/tiktoken-go/tokenizer"
)

// HashTextEmbedder tokenizes texts with the cl100k_base encoding and hashes
// tokens into a fixed number of signed buckets. Embeddings are L2 normalized.
type HashTextEmbedder struct {
	dim   int
	codec tokenizer.Codec
}

func NewHashTextEmbedder(dim int) (*HashTextEmbedder, error) {
	if dim <= 0 {
		return nil, errors.NotValidf("embedding dimension %d", dim)
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &HashTextEmbedder{dim: dim, codec: codec}, nil
}

func (h *HashTextEmbedder) Dim() int {
	return h.dim
}

func (h *HashTextEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var buf [8]byte
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		ids, _, err := h.codec.Encode(text)
		if err != nil {
			return nil, errors.Annotatef(err, "tokenize text %d", i)
		}
		embedding := make([]float32, h.dim)
		for _, id := range ids {
			binary.LittleEndian.PutUint64(buf[:], uint64(id))
			hash := xxhash.Sum64(buf[:])
			bucket := hash % uint64(h.dim)
			if hash>>63 == 0 {
				embedding[bucket]++
			} else {
				embedding[bucket]--
			}
		}
		normalize(embedding)
		result[i] = embedding
	}
	return result, nil
}

func normalize(v []float32) {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return
	}
	norm = math32.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
}
