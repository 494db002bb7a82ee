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
	"sync"
	"time"

	"github.com/juju/ratelimit"
)

var (
	EmbeddingBackOff                     = NewBackOff()
	EmbeddingRequestsLimiter RateLimiter = &Unlimited{}
	EmbeddingTokensLimiter   RateLimiter = &Unlimited{}
)

// InitEmbeddingLimiters limits embedding requests per minute and tokens per minute.
// Non-positive values disable a limiter.
func InitEmbeddingLimiters(rpm, tpm int) {
	EmbeddingRequestsLimiter = newLimiter(rpm)
	EmbeddingTokensLimiter = newLimiter(tpm)
}

func newLimiter(perMinute int) RateLimiter {
	if perMinute <= 0 {
		return &Unlimited{}
	}
	quantum := max(int64(perMinute/60), 1)
	return ratelimit.NewBucketWithQuantum(time.Second, quantum, quantum)
}

type RateLimiter interface {
	Take(count int64) time.Duration
}

type Unlimited struct{}

func (n *Unlimited) Take(count int64) time.Duration {
	return 0
}

type BackOff struct {
	mu     sync.Mutex
	factor int
}

func NewBackOff() *BackOff {
	return &BackOff{
		factor: 1,
	}
}

func (b *BackOff) Factor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.factor
}

func (b *BackOff) BackOff() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.factor *= 2
}

func (b *BackOff) Recover() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.factor = max(1, b.factor-1)
}
