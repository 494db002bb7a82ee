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
	"database/sql"
	"time"

	"github.com/gorse-io/frame/common/log"
	"github.com/juju/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

type sqlRun struct {
	ID         string     `gorm:"column:id;type:varchar(64);primaryKey"`
	Case       string     `gorm:"column:case_name;type:varchar(256)"`
	Status     string     `gorm:"column:status;type:varchar(16)"`
	Error      string     `gorm:"column:error;type:text"`
	Score      string     `gorm:"column:score;type:text"`
	Checkpoint string     `gorm:"column:checkpoint;type:varchar(256)"`
	StartTime  time.Time  `gorm:"column:start_time;index"`
	FinishTime *time.Time `gorm:"column:finish_time"`
}

func (sqlRun) TableName() string {
	return "runs"
}

type sqlKeyValue struct {
	Name  string `gorm:"column:name;type:varchar(256);primaryKey"`
	Value string `gorm:"column:value;type:text"`
}

func (sqlKeyValue) TableName() string {
	return "key_values"
}

// SQLDatabase keeps runs in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	driver SQLDriver
	client *sql.DB
	gormDB *gorm.DB
}

func newGORMConfig() *gorm.Config {
	return &gorm.Config{
		Logger: &zapgorm2.Logger{
			ZapLogger:                 log.Logger(),
			LogLevel:                  logger.Warn,
			SlowThreshold:             10 * time.Second,
			IgnoreRecordNotFoundError: true,
		},
		SkipDefaultTransaction: true,
	}
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

func (d *SQLDatabase) Init(ctx context.Context) error {
	return errors.Trace(d.gormDB.WithContext(ctx).AutoMigrate(&sqlRun{}, &sqlKeyValue{}))
}

func (d *SQLDatabase) PutRun(ctx context.Context, run *Run) error {
	row := sqlRun{
		ID:         run.ID,
		Case:       run.Case,
		Status:     string(run.Status),
		Error:      run.Error,
		Score:      run.Score.ToJSON(),
		Checkpoint: run.Checkpoint,
		StartTime:  run.StartTime.UTC(),
	}
	if !run.FinishTime.IsZero() {
		finishTime := run.FinishTime.UTC()
		row.FinishTime = &finishTime
	}
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return errors.Trace(err)
}

func (row *sqlRun) toRun() (*Run, error) {
	run := &Run{
		ID:         row.ID,
		Case:       row.Case,
		Status:     Status(row.Status),
		Error:      row.Error,
		Checkpoint: row.Checkpoint,
		StartTime:  row.StartTime,
	}
	if row.FinishTime != nil {
		run.FinishTime = *row.FinishTime
	}
	if err := run.Score.FromJSON(row.Score); err != nil {
		return nil, errors.Trace(err)
	}
	return run, nil
}

func (d *SQLDatabase) GetRun(ctx context.Context, id string) (*Run, error) {
	var row sqlRun
	err := d.gormDB.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFoundf("run %q", id)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return row.toRun()
}

func (d *SQLDatabase) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	var rows []sqlRun
	if err := d.gormDB.WithContext(ctx).Order("start_time DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	runs := make([]*Run, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toRun()
		if err != nil {
			return nil, errors.Trace(err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (d *SQLDatabase) Put(ctx context.Context, key, value string) error {
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&sqlKeyValue{Name: key, Value: value}).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) Get(ctx context.Context, key string) (*string, error) {
	var row sqlKeyValue
	err := d.gormDB.WithContext(ctx).Where("name = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return &row.Value, nil
}

// purge drops all tables. It is used by tests sharing a database server.
func (d *SQLDatabase) purge() error {
	return errors.Trace(d.gormDB.Migrator().DropTable(&sqlRun{}, &sqlKeyValue{}))
}
