package auth

import (
	"context"

	"github.com/uptrace/bun"
)

// CreateSchema creates the users and auth_identities tables and their
// indexes when missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*User)(nil),
		(*FederatedIdentity)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*FederatedIdentity)(nil)).
		Index("uq_auth_identities_provider_user").
		Unique().
		IfNotExists().
		Column("provider", "provider_user_id").
		Exec(ctx); err != nil {
		return err
	}

	if _, err := db.NewCreateIndex().
		Model((*FederatedIdentity)(nil)).
		Index("idx_auth_identities_user_uid").
		IfNotExists().
		Column("user_uid").
		Exec(ctx); err != nil {
		return err
	}

	return nil
}
