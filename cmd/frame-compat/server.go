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
	"net/http"
	"strconv"

	"github.com/emicklei/go-restful/v3"
	"github.com/gorse-io/frame/common/monitor"
	"github.com/gorse-io/frame/storage/meta"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
)

// statusServer exposes progress, recorded runs and prometheus metrics while commands run.
type statusServer struct {
	monitor *monitor.Monitor
	db      meta.Database
}

func (s *statusServer) Handler() http.Handler {
	container := restful.NewContainer()
	ws := new(restful.WebService)
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(otelrestful.OTelFilter("frame-compat"))
	ws.Route(ws.GET("/progress").To(s.getProgress).
		Doc("Get the progress of running jobs.").
		Returns(http.StatusOK, "OK", []monitor.Progress{}).
		Writes([]monitor.Progress{}))
	ws.Route(ws.GET("/runs").To(s.getRuns).
		Doc("Get recent runs.").
		Param(ws.QueryParameter("n", "Number of returned runs").DataType("integer")).
		Returns(http.StatusOK, "OK", []meta.Run{}).
		Writes([]meta.Run{}))
	container.Add(ws)
	container.Handle("/metrics", promhttp.Handler())
	return container
}

func (s *statusServer) getProgress(_ *restful.Request, response *restful.Response) {
	progress := s.monitor.List()
	if progress == nil {
		progress = []monitor.Progress{}
	}
	_ = response.WriteAsJson(progress)
}

func (s *statusServer) getRuns(request *restful.Request, response *restful.Response) {
	if s.db == nil {
		_ = response.WriteAsJson([]*meta.Run{})
		return
	}
	n := 20
	if param := request.QueryParameter("n"); param != "" {
		var err error
		if n, err = strconv.Atoi(param); err != nil {
			_ = response.WriteError(http.StatusBadRequest, err)
			return
		}
	}
	runs, err := s.db.ListRuns(request.Request.Context(), n)
	if err != nil {
		_ = response.WriteError(http.StatusInternalServerError, err)
		return
	}
	_ = response.WriteAsJson(runs)
}
