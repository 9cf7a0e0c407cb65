package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Identities stores federated identity links. (provider, provider_user_id)
// is unique.
type Identities interface {
	repository.Repository[*FederatedIdentity]

	FindByProvider(ctx context.Context, provider, providerUserID string) (*FederatedIdentity, error)
	FindByProviderTx(ctx context.Context, tx bun.IDB, provider, providerUserID string) (*FederatedIdentity, error)
	FindByUser(ctx context.Context, uid uuid.UUID) ([]*FederatedIdentity, error)
	LinkTx(ctx context.Context, tx bun.IDB, link *FederatedIdentity) (*FederatedIdentity, error)
}

type identities struct {
	repository.Repository[*FederatedIdentity]
	db *bun.DB
}

var _ Identities = (*identities)(nil)

func NewIdentitiesRepository(db *bun.DB) Identities {
	repo := repository.NewRepository[*FederatedIdentity](db, repository.ModelHandlers[*FederatedIdentity]{
		NewRecord: func() *FederatedIdentity { return &FederatedIdentity{} },
		GetID: func(r *FederatedIdentity) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *FederatedIdentity, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "provider_user_id"
		},
	})

	return &identities{
		Repository: repo,
		db:         db,
	}
}

func (r *identities) FindByProvider(ctx context.Context, provider, providerUserID string) (*FederatedIdentity, error) {
	return r.FindByProviderTx(ctx, r.db, provider, providerUserID)
}

func (r *identities) FindByProviderTx(ctx context.Context, tx bun.IDB, provider, providerUserID string) (*FederatedIdentity, error) {
	record := &FederatedIdentity{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ?", provider).
		Where("?TableAlias.provider_user_id = ?", providerUserID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"provider":         provider,
					"provider_user_id": providerUserID,
				})
		}
		return nil, err
	}
	return record, nil
}

func (r *identities) FindByUser(ctx context.Context, uid uuid.UUID) ([]*FederatedIdentity, error) {
	var records []*FederatedIdentity
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_uid = ?", uid).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil && !isRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

// LinkTx inserts a new link. A concurrent insert of the same provider
// account surfaces as a unique violation error.
func (r *identities) LinkTx(ctx context.Context, tx bun.IDB, link *FederatedIdentity) (*FederatedIdentity, error) {
	prepareIdentityDefaults(link)
	if _, err := tx.NewInsert().Model(link).Exec(ctx); err != nil {
		return nil, err
	}
	return link, nil
}
