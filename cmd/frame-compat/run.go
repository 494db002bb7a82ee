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
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorse-io/frame/common/log"
	"github.com/gorse-io/frame/common/monitor"
	"github.com/gorse-io/frame/compat"
	"github.com/gorse-io/frame/storage/blob"
	"github.com/gorse-io/frame/storage/meta"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var compatMonitor = monitor.NewMonitor("frame-compat")

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the compatibility matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, shutdown, err := setup(cmd)
		if err != nil {
			return err
		}
		defer shutdown()
		if cmd.Flags().Changed("full") {
			conf.Compat.Full, _ = cmd.Flags().GetBool("full")
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
		var store blob.Store
		if conf.Blob.Location != "" {
			if store, err = blob.Open(conf.Blob.Location, conf.Blob.Config); err != nil {
				return errors.Annotate(err, "failed to open blob store")
			}
		}

		history := io.Discard
		if showHistory, _ := cmd.Flags().GetBool("history"); showHistory {
			history = cmd.OutOrStdout()
		}
		opts, err := compatOptions(conf, history)
		if err != nil {
			return err
		}
		cases := compat.DefaultMatrix()
		if conf.Compat.Full {
			cases = compat.FullMatrix()
		}

		r := &runner{db: db, store: store, opts: opts, progress: cmd.ErrOrStderr()}
		runs, err := r.Run(ctx, cases)
		if err != nil {
			return err
		}
		if err = renderRuns(cmd.OutOrStdout(), runs); err != nil {
			return err
		}
		if failed := lo.CountBy(runs, func(run *meta.Run) bool { return run.Status == meta.StatusFailed }); failed > 0 {
			return errors.Errorf("%d of %d cases failed", failed, len(runs))
		}
		return nil
	},
}

var runsCommand = &cobra.Command{
	Use:   "runs [id]",
	Short: "List recorded runs or show one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, shutdown, err := setup(cmd)
		if err != nil {
			return err
		}
		defer shutdown()
		ctx := context.Background()
		db, err := meta.Open(conf.Database.MetaStore)
		if err != nil {
			return errors.Annotate(err, "failed to open meta store")
		}
		defer db.Close()
		if err = db.Init(ctx); err != nil {
			return errors.Annotate(err, "failed to init meta store")
		}

		var runs []*meta.Run
		if len(args) > 0 {
			run, err := db.GetRun(ctx, args[0])
			if err != nil {
				return errors.Trace(err)
			}
			runs = []*meta.Run{run}
		} else {
			limit, _ := cmd.Flags().GetInt("limit")
			if runs, err = db.ListRuns(ctx, limit); err != nil {
				return errors.Trace(err)
			}
		}
		return renderRuns(cmd.OutOrStdout(), runs)
	},
}

func init() {
	rootCommand.AddCommand(runCommand)
	runCommand.Flags().Bool("full", false, "run the full matrix")
	runCommand.Flags().Bool("history", false, "print the training history of every case")
	rootCommand.AddCommand(runsCommand)
	runsCommand.Flags().Int("limit", 20, "maximum number of runs to list")
}

// runner executes cases, records them in the meta store and uploads checkpoints.
type runner struct {
	db       meta.Database
	store    blob.Store
	opts     compat.Options
	progress io.Writer
}

func (r *runner) Run(ctx context.Context, cases []compat.Case) ([]*meta.Run, error) {
	ctx, span := compatMonitor.Start(ctx, "run", len(cases))
	defer span.End()
	bar := progressbar.NewOptions(len(cases),
		progressbar.OptionSetWriter(r.progress),
		progressbar.OptionSetDescription("compat"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish())
	runs := make([]*meta.Run, 0, len(cases))
	for _, c := range cases {
		bar.Describe(c.Name())
		run := r.runCase(ctx, c)
		if err := r.db.PutRun(ctx, run); err != nil {
			span.Fail(err)
			return runs, errors.Annotate(err, "failed to record run")
		}
		runs = append(runs, run)
		span.Add(1)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return runs, nil
}

func (r *runner) runCase(ctx context.Context, c compat.Case) *meta.Run {
	run := &meta.Run{
		ID:        uuid.NewString(),
		Case:      c.Name(),
		StartTime: time.Now().UTC(),
	}
	result, err := compat.Run(ctx, c, r.opts)
	run.FinishTime = time.Now().UTC()
	if err != nil {
		run.Status = meta.StatusFailed
		run.Error = err.Error()
		run.Score = result.Score()
		return run
	}
	run.Status = meta.StatusSucceeded
	// a missing checkpoint does not fail the case
	if r.store != nil {
		checkpoint := run.ID + ".ckpt"
		if err = blob.Upload(ctx, r.store, checkpoint, result.Net.Save); err != nil {
			log.Logger().Warn("failed to upload checkpoint", zap.String("case", c.Name()), zap.Error(err))
		} else {
			run.Checkpoint = checkpoint
		}
	}
	run.Score = result.Score()
	return run
}

func renderRuns(w io.Writer, runs []*meta.Run) error {
	table := tablewriter.NewWriter(w)
	table.Header("id", "case", "status", "predictions", "train_loss", "valid_loss", "duration", "checkpoint")
	for _, run := range runs {
		status := string(run.Status)
		if run.Error != "" {
			status += ": " + run.Error
		}
		if err := table.Append([]string{
			run.ID,
			run.Case,
			status,
			fmt.Sprintf("%d/%d", run.Score.NumPredictions, run.Score.NumTestRows),
			fmt.Sprintf("%.4f", run.Score.TrainLoss),
			fmt.Sprintf("%.4f", run.Score.ValidLoss),
			run.FinishTime.Sub(run.StartTime).Round(time.Millisecond).String(),
			run.Checkpoint,
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}
