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
	"net/http"
	"os"

	"github.com/gorse-io/frame/cmd/version"
	"github.com/gorse-io/frame/common/log"
	"github.com/gorse-io/frame/compat"
	"github.com/gorse-io/frame/config"
	"github.com/gorse-io/frame/storage/meta"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:          "frame-compat",
	Short:        "Compatibility checks of tabular models and the estimator adapter.",
	SilenceUsage: true,
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show the version of frame-compat",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), version.BuildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().String("http-addr", "", "serve progress, runs and prometheus metrics on this address")
	rootCommand.AddCommand(versionCommand)
}

// setup initializes the logger and the tracer provider,
// and loads the configuration. The returned function flushes pending spans.
func setup(cmd *cobra.Command) (*config.Config, func(), error) {
	debug, _ := cmd.Flags().GetBool("debug")
	log.SetLogger(cmd.Flags(), debug)

	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, errors.Annotate(err, "failed to load config")
	}

	provider, err := conf.Tracing.NewTracerProvider()
	if err != nil {
		return nil, nil, errors.Annotate(err, "failed to create tracer provider")
	}
	otel.SetTracerProvider(provider)
	otel.SetErrorHandler(log.GetErrorHandler())

	shutdown := func() {
		if p, ok := provider.(interface{ Shutdown(context.Context) error }); ok {
			if err := p.Shutdown(context.Background()); err != nil {
				log.Logger().Error("failed to shutdown tracer provider", zap.Error(err))
			}
		}
		_ = log.Logger().Sync()
	}
	return conf, shutdown, nil
}

// serveStatus starts the status server in the background if an address is given.
func serveStatus(cmd *cobra.Command, db meta.Database) {
	addr, _ := cmd.Flags().GetString("http-addr")
	if addr == "" {
		return
	}
	server := &statusServer{monitor: compatMonitor, db: db}
	go func() {
		log.Logger().Info("start status server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, server.Handler()); err != nil {
			log.Logger().Error("failed to serve status", zap.Error(err))
		}
	}()
}

// compatOptions builds the options of compatibility runs from the configuration.
func compatOptions(conf *config.Config, output io.Writer) (compat.Options, error) {
	embedder, err := conf.Embedding.TextEmbedder()
	if err != nil {
		return compat.Options{}, errors.Trace(err)
	}
	return compat.Options{
		NumRows:       conf.Compat.NumRows,
		Channels:      conf.Compat.Channels,
		NumLayers:     conf.Compat.NumLayers,
		Normalization: conf.Compat.Normalization,
		Train:         conf.Train,
		TextEmbedder:  &embedder,
		Seed:          conf.Compat.Seed,
		Output:        output,
	}, nil
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
