package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_session_owner_and_hints.sql
var sessionOwnerAndHintsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, sessionOwnerAndHintsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				DROP TABLE IF EXISTS math_problem_hint_reveals;
				ALTER TABLE math_problem_sessions DROP COLUMN IF EXISTS account_id`)
			return err
		},
	)
}
