// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package catalog records NDVI run summaries in Postgres.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"

	// Postgres driver
	_ "github.com/lib/pq"
	"github.com/pressly/goose"

	// Registers the Go migrations with goose
	_ "github.com/venicegeo/bf-ndvi/migrations"
	"github.com/venicegeo/bf-ndvi/util"
)

const connectionStringEnv = "DATABASE_URL"
const pzPostgresService = "pz-postgres"

//ConnectionProvider is a function that can provide a database connection.
type ConnectionProvider func(util.LogContext) (*sql.DB, error)

// ConnectionString resolves the Postgres URI from DATABASE_URL, falling back
// to the pz-postgres service in VCAP_SERVICES
func ConnectionString(ctx util.LogContext) (string, error) {
	connStr := os.Getenv(connectionStringEnv)
	if connStr == "" {
		util.LogInfo(ctx, "No DB connection found in DATABASE_URL, checking VCAP_SERVICES")
		services, err := util.VcapServicesFromEnv()
		if err != nil {
			return "", errors.New("Could not get DB connection from DATABASE_URL or VCAP_SERVICES (no valid VCAP_SERVICES found): " + err.Error())
		}
		service := services.FindServiceByName(pzPostgresService)
		if service == nil {
			return "", fmt.Errorf("Could not get DB connection from DATABASE_URL or VCAP_SERVICES ('%s' service not found); available services: %v",
				pzPostgresService, services.ServiceNames())
		}
		connStr, err = service.Credentials.String("uri")
		if err != nil {
			return "", errors.New("Could not get DB connection from DATABASE_URL or VCAP_SERVICES (error getting URI string): " + err.Error())
		}
	}

	// pq expects SSL unless it is explicitly disabled
	dbURI, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("invalid database URI: %w", err)
	}
	params := dbURI.Query()
	if params.Get("sslmode") == "" {
		params.Set("sslmode", "disable")
	}
	dbURI.RawQuery = params.Encode()
	return dbURI.String(), nil
}

// Connect opens and pings a new database connection
func Connect(ctx util.LogContext) (*sql.DB, error) {
	connStr, err := ConnectionString(ctx)
	if err != nil {
		return nil, err
	}

	util.LogInfo(ctx, "Creating database connection at: "+redact(connStr))
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies every pending schema migration
func Migrate(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Run("up", db, ".")
}

func redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
