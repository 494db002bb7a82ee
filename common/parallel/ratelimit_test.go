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

package parallel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInitEmbeddingLimiters(t *testing.T) {
	InitEmbeddingLimiters(120, 180)
	assert.Equal(t, time.Duration(0), EmbeddingRequestsLimiter.Take(2))
	assert.InDelta(t, time.Second, EmbeddingRequestsLimiter.Take(2), float64(100*time.Millisecond))
	assert.Equal(t, time.Duration(0), EmbeddingTokensLimiter.Take(3))
	assert.InDelta(t, 2*time.Second, EmbeddingTokensLimiter.Take(6), float64(100*time.Millisecond))

	InitEmbeddingLimiters(0, 0)
	assert.IsType(t, &Unlimited{}, EmbeddingRequestsLimiter)
	assert.Equal(t, time.Duration(0), EmbeddingTokensLimiter.Take(1<<20))
}

func TestBackOff_Factor(t *testing.T) {
	backOff := NewBackOff()
	assert.Equal(t, 1, backOff.Factor())
	backOff.BackOff()
	assert.Equal(t, 2, backOff.Factor())
	backOff.BackOff()
	assert.Equal(t, 4, backOff.Factor())
	backOff.Recover()
	assert.Equal(t, 3, backOff.Factor())
}
