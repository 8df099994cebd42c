package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/session"
	"github.com/dukapos/pos-core-go/internal/transport"

	"go.uber.org/zap"
)

// AuthClient authenticates the operator and owns the login/logout paths
// into the session store.
type AuthClient struct {
	transport *transport.Client
	session   *session.Store
	logger    *zap.Logger
}

// NewAuthClient creates an AuthClient.
func NewAuthClient(t *transport.Client, sess *session.Store, logger *zap.Logger) *AuthClient {
	return &AuthClient{transport: t, session: sess, logger: logger}
}

// Login exchanges credentials for an access token and persists it in the
// session store. No auth header is sent on this call.
func (c *AuthClient) Login(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	ctx, span := tracer.Start(ctx, "Auth.Login")
	defer span.End()

	if username == "" {
		return nil, &domain.ErrValidation{Field: "username", Message: "username is required"}
	}
	if password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "password is required"}
	}

	var token domain.TokenResponse
	req := domain.LoginRequest{Username: username, Password: password}
	if err := c.transport.Do(ctx, http.MethodPost, "/auth/login", req, false, &token); err != nil {
		return nil, err
	}

	if err := c.session.SetToken(token.AccessToken); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}

	c.logger.Info("operator logged in", zap.String("username", username))
	return &token, nil
}

// Register creates a new operator account.
func (c *AuthClient) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.UserResponse, error) {
	ctx, span := tracer.Start(ctx, "Auth.Register")
	defer span.End()

	var user domain.UserResponse
	if err := c.transport.Do(ctx, http.MethodPost, "/auth/register", req, false, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout discards the local session. The contract has no server-side
// logout call; the token simply stops being presented.
func (c *AuthClient) Logout() error {
	c.logger.Info("operator logged out")
	return c.session.Clear()
}
