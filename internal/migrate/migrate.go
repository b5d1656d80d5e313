// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/passvault/migrations"
)

// CollectionEnv is substituted into the schema files as the credential table name.
const CollectionEnv = "PV_COLLECTION"

// Up runs all pending migrations from the embedded filesystem against the
// database described by cc. collection names the credential table.
func Up(ctx context.Context, cc *pgx.ConnConfig, collection string) error {
	if collection != "" {
		if err := os.Setenv(CollectionEnv, collection); err != nil {
			return fmt.Errorf("set %s: %w", CollectionEnv, err)
		}
	}

	db := stdlib.OpenDB(*cc)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
