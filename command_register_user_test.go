package auth_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-folio-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserHandler_Execute(t *testing.T) {
	h := newHarness(t)
	handler := auth.NewRegisterUserHandler(h.repo, cheapPasswords{})

	msg := auth.RegisterUserMessage{
		UID:         uuid.New(),
		LoginID:     "alice",
		Password:    "correct-horse",
		DisplayName: "Alice",
		Email:       "alice@example.com",
	}
	require.NoError(t, handler.Execute(context.Background(), msg))

	user, err := h.repo.Users().GetByUID(context.Background(), msg.UID.String())
	require.NoError(t, err)
	assert.Equal(t, "alice", user.LoginID)
	assert.Equal(t, auth.RoleUser, user.Role)
	assert.NotEqual(t, msg.Password, user.PasswordHash)
	assert.NoError(t, cheapPasswords{}.ComparePasswordAndHash(msg.Password, user.PasswordHash))
}

func TestRegisterUserHandler_DuplicateLoginID(t *testing.T) {
	h := newHarness(t)
	handler := auth.NewRegisterUserHandler(h.repo, cheapPasswords{})

	first := auth.RegisterUserMessage{UID: uuid.New(), LoginID: "alice", Password: "correct-horse"}
	require.NoError(t, handler.Execute(context.Background(), first))

	second := auth.RegisterUserMessage{UID: uuid.New(), LoginID: "alice", Password: "another-horse"}
	err := handler.Execute(context.Background(), second)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeConflict))
	assert.Equal(t, "alice", metadata(t, err)["login_id"])

	_, err = h.repo.Users().GetByUID(context.Background(), second.UID.String())
	assert.Error(t, err)
}

func TestRegisterUserHandler_CancelledContext(t *testing.T) {
	h := newHarness(t)
	handler := auth.NewRegisterUserHandler(h.repo, cheapPasswords{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := auth.RegisterUserMessage{UID: uuid.New(), LoginID: "alice", Password: "correct-horse"}
	require.Error(t, handler.Execute(ctx, msg))

	exists, err := h.repo.Users().LoginIDExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegisterUserMessage_Type(t *testing.T) {
	assert.Equal(t, "user.register", auth.RegisterUserMessage{}.Type())
}

type countingRegister struct {
	next  *auth.RegisterUserHandler
	calls []auth.RegisterUserMessage
}

func (c *countingRegister) Execute(ctx context.Context, msg auth.RegisterUserMessage) error {
	c.calls = append(c.calls, msg)
	return c.next.Execute(ctx, msg)
}

func TestSessionManager_RegisterRunsCommand(t *testing.T) {
	cmd := &countingRegister{}
	h := newHarness(t, withManagerOptions(auth.WithRegisterUserCommand(cmd)))
	cmd.next = auth.NewRegisterUserHandler(h.repo, cheapPasswords{})

	res, err := h.manager.Register(context.Background(), auth.RegisterRequest{
		LoginID:     "  alice ",
		Password:    "correct-horse",
		DisplayName: "Alice",
		Phone:       "(415) 555-2671",
	})
	require.NoError(t, err)

	require.Len(t, cmd.calls, 1)
	assert.Equal(t, "alice", cmd.calls[0].LoginID)
	assert.Equal(t, cmd.calls[0].UID.String(), res.User.UID)
	assert.Equal(t, "+14155552671", cmd.calls[0].Phone)
}
