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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"

	"github.com/gorse-io/frame/common/encoding"
	"github.com/gorse-io/frame/compat"
	"github.com/gorse-io/frame/dataset"
	"github.com/gorse-io/frame/estimator"
	"github.com/gorse-io/frame/model"
	"github.com/gorse-io/frame/storage/meta"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var tuneCommand = &cobra.Command{
	Use:   "tune",
	Short: "Tune the learning rate and the backbone of one case by TPE search",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, shutdown, err := setup(cmd)
		if err != nil {
			return err
		}
		defer shutdown()
		c, err := parseCase(cmd.Flags())
		if err != nil {
			return err
		}
		trials := conf.Search.Trials
		if cmd.Flags().Changed("trials") {
			trials, _ = cmd.Flags().GetInt("trials")
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		db, err := meta.Open(conf.Database.MetaStore)
		if err != nil {
			return errors.Annotate(err, "failed to open meta store")
		}
		defer db.Close()
		if err = db.Init(ctx); err != nil {
			return errors.Annotate(err, "failed to init meta store")
		}
		serveStatus(cmd, db)

		opts, err := compatOptions(conf, io.Discard)
		if err != nil {
			return err
		}
		result, err := tune(ctx, c, opts, trials)
		if err != nil {
			return err
		}
		if err = renderSearchResult(cmd.OutOrStdout(), c, result); err != nil {
			return err
		}

		// remember the best parameters of the case
		data, err := json.Marshal(result.Params)
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(db.Put(ctx, tuneKey(c), string(data)))
	},
}

func init() {
	rootCommand.AddCommand(tuneCommand)
	addCaseFlags(tuneCommand.Flags())
	tuneCommand.Flags().Int("trials", 10, "number of trials")
}

func addCaseFlags(flagSet *pflag.FlagSet) {
	flagSet.String("model", model.KindMLP, "model kind")
	flagSet.StringSlice("stypes", []string{string(dataset.Numerical)}, "semantic types of feature columns")
	flagSet.String("task", string(dataset.Regression), "task type")
}

func parseCase(flagSet *pflag.FlagSet) (compat.Case, error) {
	kind, _ := flagSet.GetString("model")
	names, _ := flagSet.GetStringSlice("stypes")
	task, _ := flagSet.GetString("task")
	c := compat.Case{Model: kind}
	for _, name := range names {
		stype, err := dataset.ParseStype(name)
		if err != nil {
			return c, errors.Trace(err)
		}
		c.Stypes = append(c.Stypes, stype)
	}
	taskType, err := dataset.ParseTaskType(task)
	if err != nil {
		return c, errors.Trace(err)
	}
	c.TaskType = taskType
	return c, nil
}

func tuneKey(c compat.Case) string {
	return "tune/" + c.Name()
}

// tune searches hyper-parameters on the train partition validated on the val partition.
func tune(ctx context.Context, c compat.Case, opts compat.Options, trials int) (estimator.SearchResult, error) {
	ctx, span := compatMonitor.Start(ctx, "tune "+c.Name(), trials)
	defer span.End()
	criterion, err := c.Criterion()
	if err != nil {
		return estimator.SearchResult{}, errors.Trace(err)
	}
	f, err := compat.NewFixture(ctx, c, opts)
	if err != nil {
		return estimator.SearchResult{}, errors.Trace(err)
	}
	params, err := f.Params(opts)
	if err != nil {
		return estimator.SearchResult{}, errors.Trace(err)
	}
	search := estimator.NewModelSearch(f.NewModule, params, criterion, opts.Train, f.Dataset, nil)
	result, err := search.Optimize(ctx, trials)
	if err != nil {
		span.Fail(err)
		return result, errors.Trace(err)
	}
	span.Add(len(result.History))
	return result, nil
}

func renderSearchResult(w io.Writer, c compat.Case, result estimator.SearchResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("case", "lr", "score", "params")
	keys := lo.Keys(result.Params)
	slices.Sort(keys)
	params := lo.Map(keys, func(k model.ParamName, _ int) string {
		return fmt.Sprintf("%s=%v", k, result.Params[k])
	})
	if err := table.Append([]string{
		c.Name(),
		encoding.FormatFloat32(result.Lr),
		fmt.Sprintf("%.4f", result.Score),
		fmt.Sprint(params),
	}); err != nil {
		return errors.Trace(err)
	}
	if err := table.Render(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(result.History.Render(w))
}
