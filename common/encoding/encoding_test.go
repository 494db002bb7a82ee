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

package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteFloat32s(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteFloat32s(buf, []float32{1, 2.5, -3}))
	assert.NoError(t, WriteFloat32s(buf, nil))
	v, err := ReadFloat32s(buf)
	assert.NoError(t, err)
	assert.Equal(t, []float32{1, 2.5, -3}, v)
	v, err = ReadFloat32s(buf)
	assert.NoError(t, err)
	assert.Empty(t, v)
	_, err = ReadFloat32s(buf)
	assert.Error(t, err)
}

func TestWriteString(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteString(buf, "mlp"))
	s, err := ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, "mlp", s)
}

func TestReadBytesTruncated(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteBytes(buf, []byte("hello")))
	truncated := bytes.NewBuffer(buf.Bytes()[:6])
	_, err := ReadBytes(truncated)
	assert.Error(t, err)
}

func TestWriteGob(t *testing.T) {
	type stats struct {
		Mean float64
		Keys []string
	}
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteGob(buf, stats{Mean: 1.5, Keys: []string{"a", "b"}}))
	var s stats
	assert.NoError(t, ReadGob(buf, &s))
	assert.Equal(t, stats{Mean: 1.5, Keys: []string{"a", "b"}}, s)
}

func TestFormatFloat32(t *testing.T) {
	assert.Equal(t, "1.5", FormatFloat32(1.5))
}
