// Package onboarding answers whether a user finished onboarding, either from
// a remote status service or from the local user record.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

const defaultTimeout = 2 * time.Second

// ErrUnexpectedStatus is returned for any status other than 200 or 404.
var ErrUnexpectedStatus = errors.New("onboarding: unexpected status")

// HTTPChecker asks GET {baseURL}/{userID}: 200 means completed, 404 means not.
type HTTPChecker struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewHTTPChecker(baseURL string, timeout time.Duration, client *http.Client) *HTTPChecker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: timeout,
	}
}

func (c *HTTPChecker) Completed(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(userID), nil)
	if err != nil {
		return false, fmt.Errorf("onboarding request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("onboarding request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// RepositoryChecker reads the onboarding flag from the user store.
type RepositoryChecker struct {
	users ports.UserRepository
}

func NewRepositoryChecker(users ports.UserRepository) *RepositoryChecker {
	return &RepositoryChecker{users: users}
}

func (c *RepositoryChecker) Completed(ctx context.Context, userID string) (bool, error) {
	user, err := c.users.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return c.CompletedFor(user), nil
}

// CompletedFor reads the flag from an already loaded record.
func (c *RepositoryChecker) CompletedFor(user *domain.User) bool {
	return user.OnboardingComplete
}
