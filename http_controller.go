package auth

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the SessionManager over go-router
type HTTPController struct {
	manager *SessionManager
	logger  Logger
}

// HTTPControllerOption configures an HTTPController
type HTTPControllerOption func(*HTTPController)

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(h *HTTPController) {
		h.logger = normalizeLogger(logger)
	}
}

// NewHTTPController creates the controller
func NewHTTPController(manager *SessionManager, opts ...HTTPControllerOption) *HTTPController {
	h := &HTTPController{
		manager: manager,
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// RegisterRoutes mounts the auth routes under r, typically
// srv.Router().Group("/auth")
func (h *HTTPController) RegisterRoutes(r RouteRegistrar) {
	requireAuth := RequireAuth(h.manager.TokenService())

	r.Post("/register", h.Register).SetName("auth.register")
	r.Post("/login", h.Login).SetName("auth.login")
	r.Post("/refresh", h.Refresh).SetName("auth.refresh")
	r.Post("/logout", h.Logout, requireAuth).SetName("auth.logout")
	r.Get("/me", h.Me, requireAuth).SetName("auth.me")

	r.Get("/oauth/:provider", h.OAuthStart).SetName("auth.oauth.start")
	r.Get("/oauth/:provider/callback", h.OAuthCallback).SetName("auth.oauth.callback")

	r.Post("/firebase", h.Firebase).SetName("auth.firebase")
	r.Post("/assertion/:provider", h.Assertion).SetName("auth.assertion")
}

func (h *HTTPController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)
	if err := bindPayload(ctx, payload); err != nil {
		return err
	}

	res, err := h.manager.Register(ctx.Context(), *payload)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, res)
}

func (h *HTTPController) Login(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := bindPayload(ctx, payload); err != nil {
		return err
	}

	res, err := h.manager.Login(ctx.Context(), *payload)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, res)
}

func (h *HTTPController) Refresh(ctx router.Context) error {
	payload := new(RefreshRequest)
	if err := bindPayload(ctx, payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return validationFailed(err)
	}

	res, err := h.manager.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, res)
}

// Logout answers {ok:true} whenever the access token is valid. A refresh
// token in the body is revoked when present.
func (h *HTTPController) Logout(ctx router.Context) error {
	principal, ok := PrincipalFromRouter(ctx)
	if !ok {
		return ErrUnauthorized
	}

	payload := new(RefreshRequest)
	if err := bindPayload(ctx, payload); err != nil {
		return err
	}

	if err := h.manager.Logout(ctx.Context(), principal, payload.RefreshToken); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (h *HTTPController) Me(ctx router.Context) error {
	principal, ok := PrincipalFromRouter(ctx)
	if !ok {
		return ErrUnauthorized
	}
	return ctx.JSON(http.StatusOK, principal)
}

func (h *HTTPController) OAuthStart(ctx router.Context) error {
	res, err := h.manager.BeginOAuth(ctx.Context(), ctx.Param("provider"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (h *HTTPController) OAuthCallback(ctx router.Context) error {
	cb := OAuthCallback{
		Code:             ctx.Query("code"),
		State:            ctx.Query("state"),
		Error:            ctx.Query("error"),
		ErrorDescription: ctx.Query("error_description"),
	}

	res, err := h.manager.CompleteOAuth(ctx.Context(), ctx.Param("provider"), cb)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, res)
}

func (h *HTTPController) Firebase(ctx router.Context) error {
	return h.assertion(ctx, "firebase")
}

func (h *HTTPController) Assertion(ctx router.Context) error {
	return h.assertion(ctx, ctx.Param("provider"))
}

func (h *HTTPController) assertion(ctx router.Context, provider string) error {
	payload := new(AssertionRequest)
	if err := bindPayload(ctx, payload); err != nil {
		return err
	}

	res, err := h.manager.AssertionLogin(ctx.Context(), provider, *payload)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, res)
}

func bindPayload(ctx router.Context, out any) error {
	if err := ctx.Bind(out); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			return validationFailed(err)
		}
		return withMeta(ErrBadRequest, err, map[string]any{"reason": "malformed body"})
	}
	return nil
}
