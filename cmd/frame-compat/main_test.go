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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/frame/compat"
	"github.com/gorse-io/frame/config"
	"github.com/gorse-io/frame/dataset"
	"github.com/gorse-io/frame/estimator"
	"github.com/gorse-io/frame/model"
	"github.com/gorse-io/frame/storage/blob"
	"github.com/gorse-io/frame/storage/meta"
	"github.com/juju/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type CompatTestSuite struct {
	suite.Suite
	db    meta.Database
	store blob.Store
	opts  compat.Options
}

func (suite *CompatTestSuite) SetupTest() {
	var err error
	dir := suite.T().TempDir()
	suite.db, err = meta.Open(fmt.Sprintf("sqlite://%s/meta.db", dir))
	suite.Require().NoError(err)
	suite.Require().NoError(suite.db.Init(context.Background()))
	suite.store = blob.NewPOSIX(filepath.Join(dir, "checkpoints"))
	suite.opts, err = compatOptions(config.GetDefaultConfig(), io.Discard)
	suite.Require().NoError(err)
}

func (suite *CompatTestSuite) TearDownTest() {
	suite.NoError(suite.db.Close())
}

func (suite *CompatTestSuite) TestRunMatrix() {
	ctx := context.Background()
	r := &runner{db: suite.db, store: suite.store, opts: suite.opts, progress: io.Discard}
	cases := compat.DefaultMatrix()
	runs, err := r.Run(ctx, cases)
	suite.NoError(err)
	suite.Len(runs, len(cases))
	for i, run := range runs {
		suite.Equal(cases[i].Name(), run.Case)
		suite.Equal(meta.StatusSucceeded, run.Status, run.Error)
		suite.Equal(run.Score.NumTestRows, run.Score.NumPredictions)
		suite.Equal(2, run.Score.Epochs)

		// recorded
		recorded, err := suite.db.GetRun(ctx, run.ID)
		suite.NoError(err)
		suite.Equal(run.Case, recorded.Case)
		suite.Equal(run.Score, recorded.Score)

		// checkpoint restores the model
		suite.Equal(run.ID+".ckpt", run.Checkpoint)
		err = blob.Download(ctx, suite.store, run.Checkpoint, func(r io.Reader) error {
			net, err := estimator.Load(r)
			if err != nil {
				return err
			}
			suite.True(net.IsFitted())
			return nil
		})
		suite.NoError(err)
	}

	listed, err := suite.db.ListRuns(ctx, 10)
	suite.NoError(err)
	suite.Len(listed, len(cases))

	var buf bytes.Buffer
	suite.NoError(renderRuns(&buf, runs))
	for _, c := range cases {
		suite.Contains(buf.String(), c.Name())
	}
}

func (suite *CompatTestSuite) TestRunFailure() {
	r := &runner{db: suite.db, opts: suite.opts, progress: io.Discard}
	runs, err := r.Run(context.Background(), []compat.Case{{
		Model:    "resnet",
		Stypes:   []dataset.Stype{dataset.Numerical},
		TaskType: dataset.Regression,
	}})
	suite.NoError(err)
	suite.Len(runs, 1)
	suite.Equal(meta.StatusFailed, runs[0].Status)
	suite.Contains(runs[0].Error, "resnet")
	suite.Empty(runs[0].Checkpoint)
}

func (suite *CompatTestSuite) TestRunCheckpointFailure() {
	// checkpoints cannot be created below a regular file
	file := filepath.Join(suite.T().TempDir(), "file")
	suite.Require().NoError(os.WriteFile(file, nil, 0o644))
	r := &runner{db: suite.db, store: blob.NewPOSIX(file), opts: suite.opts, progress: io.Discard}
	runs, err := r.Run(context.Background(), compat.DefaultMatrix()[:1])
	suite.NoError(err)
	suite.Len(runs, 1)
	suite.Equal(meta.StatusSucceeded, runs[0].Status)
	suite.Empty(runs[0].Error)
	suite.Empty(runs[0].Checkpoint)
	suite.Equal(runs[0].Score.NumTestRows, runs[0].Score.NumPredictions)

	run, err := suite.db.GetRun(context.Background(), runs[0].ID)
	suite.NoError(err)
	suite.Equal(meta.StatusSucceeded, run.Status)
	suite.Empty(run.Checkpoint)
}

func (suite *CompatTestSuite) TestTune() {
	c := compat.Case{
		Model:    model.KindMLP,
		Stypes:   []dataset.Stype{dataset.Numerical},
		TaskType: dataset.Regression,
	}
	result, err := tune(context.Background(), c, suite.opts, 3)
	suite.NoError(err)
	suite.Contains(result.Params, model.Channels)
	suite.Greater(result.Lr, float32(0))

	var buf bytes.Buffer
	suite.NoError(renderSearchResult(&buf, c, result))
	suite.Contains(buf.String(), c.Name())

	data, err := json.Marshal(result.Params)
	suite.NoError(err)
	suite.NoError(suite.db.Put(context.Background(), tuneKey(c), string(data)))
	value, err := suite.db.Get(context.Background(), tuneKey(c))
	suite.NoError(err)
	suite.Equal(string(data), *value)
}

func TestCompat(t *testing.T) {
	suite.Run(t, new(CompatTestSuite))
}

func TestParseCase(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addCaseFlags(flagSet)
	c, err := parseCase(flagSet)
	assert.NoError(t, err)
	assert.Equal(t, "mlp/numerical/regression/frame", c.Name())

	assert.NoError(t, flagSet.Parse([]string{"--stypes", "numerical,categorical", "--task", "multiclass_classification"}))
	c, err = parseCase(flagSet)
	assert.NoError(t, err)
	assert.Equal(t, "mlp/numerical+categorical/multiclass_classification/frame", c.Name())

	assert.NoError(t, flagSet.Set("task", "ranking"))
	_, err = parseCase(flagSet)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCommand.SetOut(&buf)
	rootCommand.SetArgs([]string{"version"})
	defer rootCommand.SetOut(os.Stdout)
	assert.NoError(t, rootCommand.Execute())
	assert.Contains(t, buf.String(), "Version:")
}
