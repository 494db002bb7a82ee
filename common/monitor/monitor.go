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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type spanKeyType string

var spanKeyName = spanKeyType(uuid.New().String())

var tracer = otel.Tracer("github.com/gorse-io/frame")

type Status string

const (
	StatusPending  Status = "Pending"
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

// Monitor keeps the root spans of long running jobs such as a compatibility run.
type Monitor struct {
	name  string
	spans sync.Map
}

func NewMonitor(name string) *Monitor {
	return &Monitor{name: name}
}

// Start creates a root span.
func (m *Monitor) Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	ctx, span := newSpan(ctx, name, total)
	m.spans.Store(name, span)
	return context.WithValue(ctx, spanKeyName, span), span
}

// List returns the progress of all root spans ordered by start time.
func (m *Monitor) List() []Progress {
	var progress []Progress
	m.spans.Range(func(_, value any) bool {
		p := value.(*Span).Progress()
		p.Monitor = m.name
		progress = append(progress, p)
		return true
	})
	sort.Slice(progress, func(i, j int) bool {
		return progress[i].StartTime.Before(progress[j].StartTime)
	})
	return progress
}

type Span struct {
	mu       sync.Mutex
	name     string
	status   Status
	total    int
	count    int
	err      string
	start    time.Time
	finish   time.Time
	children sync.Map
	span     trace.Span
}

func newSpan(ctx context.Context, name string, total int) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attribute.Int("total", total)))
	return ctx, &Span{
		name:   name,
		status: StatusRunning,
		total:  total,
		start:  time.Now(),
		span:   span,
	}
}

func (s *Span) Add(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count += n
	s.span.AddEvent("progress", trace.WithAttributes(attribute.Int("count", s.count)))
}

// End completes the span unless it has failed.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		s.status = StatusComplete
		s.count = s.total
		s.span.SetStatus(codes.Ok, "")
	}
	s.finish = time.Now()
	s.span.End()
}

func (s *Span) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
	s.err = err.Error()
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, s.err)
}

func (s *Span) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Span) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Progress returns a snapshot of the span and its children.
func (s *Span) Progress() Progress {
	s.mu.Lock()
	p := Progress{
		Name:       s.name,
		Status:     s.status,
		Error:      s.err,
		Count:      s.count,
		Total:      s.total,
		StartTime:  s.start,
		FinishTime: s.finish,
	}
	s.mu.Unlock()
	s.children.Range(func(_, value any) bool {
		p.Children = append(p.Children, value.(*Span).Progress())
		return true
	})
	sort.Slice(p.Children, func(i, j int) bool {
		return p.Children[i].StartTime.Before(p.Children[j].StartTime)
	})
	return p
}

// Start creates a child span of the span in the context. Without a parent the
// span is detached from any monitor but still traced.
func Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	var parent *Span
	if ctx != nil {
		parent, _ = ctx.Value(spanKeyName).(*Span)
	}
	ctx, span := newSpan(ctx, name, total)
	if parent != nil {
		parent.children.Store(name, span)
	}
	return context.WithValue(ctx, spanKeyName, span), span
}

type Progress struct {
	Monitor    string
	Name       string
	Status     Status
	Error      string
	Count      int
	Total      int
	StartTime  time.Time
	FinishTime time.Time
	Children   []Progress
}
