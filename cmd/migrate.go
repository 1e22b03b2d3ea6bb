/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"database/sql"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/hub"
	"github.com/blnkfinance/hub/database"
)

const migrationSchema = "hub"

// migrateCommands creates the root command for migration-related operations.
func migrateCommands(app *hubInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run hub database migrations",
	}

	cmd.AddCommand(migrateDirectionCommand(app, "up", "apply all pending migrations", migrate.Up))
	cmd.AddCommand(migrateDirectionCommand(app, "down", "roll back all migrations", migrate.Down))
	return cmd
}

func migrateDirectionCommand(app *hubInstance, use, short string, dir migrate.MigrationDirection) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.ConnectDB(app.cnf.DataSource.Dns)
			if err != nil {
				return fmt.Errorf("error connecting to database: %w", err)
			}
			defer db.Close()

			n, err := runMigrations(db, dir)
			if err != nil {
				return fmt.Errorf("error migrating %s: %w", use, err)
			}
			fmt.Printf("Applied %d migrations (%s)!\n", n, use)
			return nil
		},
	}
}

// runMigrations applies the embedded sql/ migrations. The bookkeeping table
// lives in the hub schema, which has to exist before sql-migrate touches it.
func runMigrations(db *sql.DB, dir migrate.MigrationDirection) (int, error) {
	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + migrationSchema); err != nil {
		return 0, err
	}
	migrate.SetSchema(migrationSchema)

	migrations := migrate.EmbedFileSystemMigrationSource{
		FileSystem: hub.SQLFiles,
		Root:       "sql",
	}
	return migrate.Exec(db, "postgres", migrations, dir)
}
