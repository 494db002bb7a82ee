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
	"net/url"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

const (
	MySQLPrefix      = "mysql://"
	PostgresPrefix   = "postgres://"
	PostgreSQLPrefix = "postgresql://"
	SQLitePrefix     = "sqlite://"
	RedisPrefix      = "redis://"
	RedissPrefix     = "rediss://"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run records the outcome of one compatibility case.
type Run struct {
	ID         string
	Case       string
	Status     Status
	Error      string
	Score      Score
	Checkpoint string
	StartTime  time.Time
	FinishTime time.Time
}

// Score summarizes the training and the predictions of a run.
type Score struct {
	NumTrainRows   int
	NumTestRows    int
	NumPredictions int
	Epochs         int
	TrainLoss      float64
	// ValidLoss is zero without a validation set.
	ValidLoss float64
}

func (s *Score) ToJSON() string {
	return string(lo.Must1(json.Marshal(s)))
}

func (s *Score) FromJSON(data string) error {
	return json.Unmarshal([]byte(data), s)
}

type Database interface {
	Close() error
	Init(ctx context.Context) error
	PutRun(ctx context.Context, run *Run) error
	// GetRun returns a not found error for unknown runs.
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns the latest runs first.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	Put(ctx context.Context, key, value string) error
	// Get returns nil for unknown keys.
	Get(ctx context.Context, key string) (*string, error)
}

// Open connects to a database by URL prefix.
func Open(path string) (Database, error) {
	var err error
	switch {
	case strings.HasPrefix(path, MySQLPrefix):
		name := path[len(MySQLPrefix):]
		// append parameters
		if name, err = appendMySQLParams(name, map[string]string{
			"sql_mode":  "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			"parseTime": "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		database := &SQLDatabase{driver: MySQL}
		if database.client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		if database.gormDB, err = gorm.Open(gormmysql.New(gormmysql.Config{Conn: database.client}), newGORMConfig()); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	case strings.HasPrefix(path, PostgresPrefix), strings.HasPrefix(path, PostgreSQLPrefix):
		database := &SQLDatabase{driver: Postgres}
		if database.client, err = otelsql.Open("postgres", path,
			otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		if database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), newGORMConfig()); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	case strings.HasPrefix(path, SQLitePrefix):
		dataSourceName := path[len(SQLitePrefix):]
		// append parameters
		if dataSourceName, err = appendURLParams(dataSourceName, []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		database := &SQLDatabase{driver: SQLite}
		if database.client, err = otelsql.Open("sqlite", dataSourceName,
			otelsql.WithAttributes(semconv.DBSystemSqlite),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		if database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, newGORMConfig()); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	case strings.HasPrefix(path, RedisPrefix), strings.HasPrefix(path, RedissPrefix):
		opt, err := redis.ParseURL(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database := &Redis{client: redis.NewClient(opt)}
		if err = redisotel.InstrumentTracing(database.client); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.NotSupportedf("database %q", path)
}

func appendMySQLParams(dsn string, params map[string]string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Trace(err)
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	for key, value := range params {
		if _, exist := cfg.Params[key]; !exist {
			cfg.Params[key] = value
		}
	}
	return cfg.FormatDSN(), nil
}

func appendURLParams(rawURL string, params []lo.Tuple2[string, string]) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Trace(err)
	}
	q := parsed.Query()
	for _, tuple := range params {
		q.Add(tuple.A, tuple.B)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
