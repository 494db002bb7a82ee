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

package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitor(t *testing.T) {
	m := NewMonitor("compat")
	ctx, root := m.Start(context.Background(), "run", 2)
	_, child := Start(ctx, "case", 10)
	child.Add(3)
	assert.Equal(t, 3, child.Count())
	child.End()
	root.Add(1)

	progress := m.List()
	if assert.Len(t, progress, 1) {
		assert.Equal(t, "compat", progress[0].Monitor)
		assert.Equal(t, "run", progress[0].Name)
		assert.Equal(t, StatusRunning, progress[0].Status)
		assert.Equal(t, 1, progress[0].Count)
		if assert.Len(t, progress[0].Children, 1) {
			assert.Equal(t, "case", progress[0].Children[0].Name)
			assert.Equal(t, StatusComplete, progress[0].Children[0].Status)
			assert.Equal(t, 10, progress[0].Children[0].Count)
		}
	}

	root.Fail(errors.New("boom"))
	root.End()
	progress = m.List()
	assert.Equal(t, StatusFailed, progress[0].Status)
	assert.Equal(t, "boom", progress[0].Error)
	assert.False(t, progress[0].FinishTime.IsZero())
}

func TestDetachedSpan(t *testing.T) {
	ctx, span := Start(context.Background(), "fit", 5)
	assert.NotNil(t, ctx)
	span.Add(2)
	span.End()
	assert.Equal(t, StatusComplete, span.Status())
	assert.Equal(t, 5, span.Count())
}
