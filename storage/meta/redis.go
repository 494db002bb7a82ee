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

package meta

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

const (
	prefixRun    = "frame:run:"
	keyRuns      = "frame:runs"
	prefixValues = "frame:kv:"
)

// Redis keeps runs as JSON documents indexed by a sorted set of start times.
type Redis struct {
	client *redis.Client
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Init(ctx context.Context) error {
	return errors.Trace(r.client.Ping(ctx).Err())
}

func (r *Redis) PutRun(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, prefixRun+run.ID, data, 0)
		pipe.ZAdd(ctx, keyRuns, redis.Z{Score: float64(run.StartTime.UnixNano()), Member: run.ID})
		return nil
	})
	return errors.Trace(err)
}

func (r *Redis) GetRun(ctx context.Context, id string) (*Run, error) {
	data, err := r.client.Get(ctx, prefixRun+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.NotFoundf("run %q", id)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	var run Run
	if err = json.Unmarshal(data, &run); err != nil {
		return nil, errors.Trace(err)
	}
	return &run, nil
}

func (r *Redis) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	ids, err := r.client.ZRevRange(ctx, keyRuns, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	runs := make([]*Run, 0, len(ids))
	for _, id := range ids {
		run, err := r.GetRun(ctx, id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (r *Redis) Put(ctx context.Context, key, value string) error {
	return errors.Trace(r.client.Set(ctx, prefixValues+key, value, 0).Err())
}

func (r *Redis) Get(ctx context.Context, key string) (*string, error) {
	value, err := r.client.Get(ctx, prefixValues+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return &value, nil
}
