package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegisterUserMessage creates a password principal. UID is chosen by the
// caller so the new row can be loaded once the command returns.
type RegisterUserMessage struct {
	UID         uuid.UUID `json:"uid"`
	LoginID     string    `json:"login_id"`
	Password    string    `json:"-"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler hashes the password and stores the principal in a
// single transaction.
type RegisterUserHandler struct {
	repo      RepositoryManager
	passwords PasswordAuthenticator
}

var _ command.Commander[RegisterUserMessage] = (*RegisterUserHandler)(nil)

// NewRegisterUserHandler returns the default registration command
func NewRegisterUserHandler(repo RepositoryManager, passwords PasswordAuthenticator) *RegisterUserHandler {
	if passwords == nil {
		passwords = NewPasswordAuthenticator()
	}
	return &RegisterUserHandler{
		repo:      repo,
		passwords: passwords,
	}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	hash, err := h.passwords.HashPassword(event.Password)
	if err != nil {
		return internalError(err, "failed to hash password")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		users := h.repo.Users()

		exists, err := users.LoginIDExistsTx(ctx, tx, event.LoginID)
		if err != nil {
			return err
		}
		if exists {
			return withMeta(ErrLoginIDTaken, nil, map[string]any{"login_id": event.LoginID})
		}

		_, err = users.RegisterTx(ctx, tx, &User{
			UID:           event.UID,
			LoginID:       event.LoginID,
			PasswordHash:  hash,
			DisplayName:   event.DisplayName,
			Email:         event.Email,
			Phone:         event.Phone,
			IsEmailPublic: true,
			IsPhonePublic: true,
			Role:          RoleUser,
		})
		return err
	})

	return internalError(err, "user registration transaction failed")
}
