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
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type SQLiteTestSuite struct {
	baseTestSuite
}

func (suite *SQLiteTestSuite) SetupTest() {
	var err error
	path := fmt.Sprintf("sqlite://%s/sqlite.db", suite.T().TempDir())
	suite.Database, err = Open(path)
	suite.NoError(err)
	suite.NoError(suite.Database.Init(context.Background()))
}

func (suite *SQLiteTestSuite) TearDownTest() {
	suite.NoError(suite.Database.Close())
}

func TestSQLite(t *testing.T) {
	suite.Run(t, new(SQLiteTestSuite))
}

// sqlServerTestSuite runs against a shared server and drops tables before each test.
type sqlServerTestSuite struct {
	baseTestSuite
	uri string
}

func (suite *sqlServerTestSuite) SetupTest() {
	var err error
	suite.Database, err = Open(suite.uri)
	suite.NoError(err)
	suite.NoError(suite.Database.(*SQLDatabase).purge())
	suite.NoError(suite.Database.Init(context.Background()))
}

func (suite *sqlServerTestSuite) TearDownTest() {
	suite.NoError(suite.Database.Close())
}

func TestMySQL(t *testing.T) {
	uri := os.Getenv("MYSQL_URI")
	if uri == "" {
		t.Skip("MYSQL_URI is not set, skipping MySQL tests")
	}
	suite.Run(t, &sqlServerTestSuite{uri: uri})
}

func TestPostgres(t *testing.T) {
	uri := os.Getenv("POSTGRES_URI")
	if uri == "" {
		t.Skip("POSTGRES_URI is not set, skipping Postgres tests")
	}
	suite.Run(t, &sqlServerTestSuite{uri: uri})
}

func TestAppendMySQLParams(t *testing.T) {
	dsn, err := appendMySQLParams("root:password@tcp(127.0.0.1:3306)/frame?sql_mode=ANSI", map[string]string{
		"parseTime": "true",
		"sql_mode":  "'STRICT_TRANS_TABLES'",
	})
	assert.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "sql_mode=ANSI")
	assert.NotContains(t, dsn, "STRICT_TRANS_TABLES")

	_, err = appendMySQLParams("localhost:3306", nil)
	assert.Error(t, err)
}
