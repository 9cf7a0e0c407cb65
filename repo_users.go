package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// Users is the credential store. Every lookup skips soft-deleted rows except
// the login id existence check, which keeps deleted identifiers reserved.
type Users interface {
	repository.Repository[*User]

	GetByUID(ctx context.Context, uid string, criteria ...repository.SelectCriteria) (*User, error)
	GetByUIDTx(ctx context.Context, tx bun.IDB, uid string, criteria ...repository.SelectCriteria) (*User, error)
	GetByLoginID(ctx context.Context, loginID string, criteria ...repository.SelectCriteria) (*User, error)
	GetByLoginIDTx(ctx context.Context, tx bun.IDB, loginID string, criteria ...repository.SelectCriteria) (*User, error)
	LoginIDExists(ctx context.Context, loginID string) (bool, error)
	LoginIDExistsTx(ctx context.Context, tx bun.IDB, loginID string) (bool, error)
	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.UID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.UID = id
			}
		},
		GetIdentifier: func() string {
			return "login_id"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByUID(ctx context.Context, uid string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByUIDTx(ctx, a.db, uid, criteria...)
}

func (a *users) GetByUIDTx(ctx context.Context, tx bun.IDB, uid string, criteria ...repository.SelectCriteria) (*User, error) {
	id, err := uuid.Parse(strings.TrimSpace(uid))
	if err != nil {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"uid": uid,
			})
	}
	return a.findOne(ctx, tx, "uid", id, criteria...)
}

func (a *users) GetByLoginID(ctx context.Context, loginID string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByLoginIDTx(ctx, a.db, loginID, criteria...)
}

func (a *users) GetByLoginIDTx(ctx context.Context, tx bun.IDB, loginID string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.findOne(ctx, tx, "login_id", strings.TrimSpace(loginID), criteria...)
}

func (a *users) LoginIDExists(ctx context.Context, loginID string) (bool, error) {
	return a.LoginIDExistsTx(ctx, a.db, loginID)
}

func (a *users) LoginIDExistsTx(ctx context.Context, tx bun.IDB, loginID string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		WhereAllWithDeleted().
		Where("?TableAlias.login_id = ?", loginID).
		Exists(ctx)
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, withMeta(ErrLoginIDTaken, err, map[string]any{
				"login_id": user.LoginID,
			})
		}
		return nil, err
	}
	return user, nil
}

func (a *users) findOne(ctx context.Context, tx bun.IDB, column string, value any, criteria ...repository.SelectCriteria) (*User, error) {
	record := &User{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					column: value,
				})
		}
		return nil, err
	}

	return record, nil
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

// isUniqueViolation detects unique index violations for postgres and sqlite
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := strings.ToLower(e.Error())
		if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
			return true
		}
	}
	return false
}
