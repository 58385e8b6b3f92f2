package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/brightpath-hq/brightpath/database"
)

// BootstrapSchema applies the provisioning DDL in a single transaction, in
// dependency order: organizations, subscriptions, users. The statements are
// idempotent, so repeated bootstraps are safe.
//
// SQL is embedded at build time so binaries stay self-contained. Intended for
// startup bootstrap and tests.
func BootstrapSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("bootstrap schema: pool is required")
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.OrganizationsSQL)...)
	statements = append(statements, splitStatements(sqlassets.SubscriptionsSQL)...)
	statements = append(statements, splitStatements(sqlassets.UsersSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// splitStatements breaks an asset into individual statements on trailing
// semicolons, dropping comment-only and empty chunks. Good enough for the
// DDL we ship; not a general SQL parser.
func splitStatements(asset string) []string {
	var statements []string
	for _, chunk := range strings.Split(asset, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		statements = append(statements, strings.TrimSpace(strings.Join(lines, "\n")))
	}
	return statements
}
