package device

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/castforge/castforge/internal/core/domain"
)

// =============================================================================
// Authenticator
// =============================================================================

// Authenticator verifies reachability and credential validity for a single
// candidate device. Reachability and credential checks are separate because a
// device may answer info queries while still rejecting the supplied secret.
type Authenticator struct {
	client *Client
	logger *slog.Logger
}

// NewAuthenticator creates an authenticator on top of a device client.
func NewAuthenticator(client *Client, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		client: client,
		logger: logger.With("component", "authenticator"),
	}
}

// TestReachable reports whether the device answers its info endpoint. Any
// failure, network errors included, yields false; it never returns an error.
func (a *Authenticator) TestReachable(ctx context.Context, dev domain.Device) bool {
	_, err := a.client.FetchInfo(ctx, dev.Address)
	if err != nil {
		a.logger.Debug("device not reachable", "address", dev.Address, "error", err)
		return false
	}
	return true
}

// TestCredential reports whether the secret is accepted by the device's
// authenticated status endpoint. 401/403 and connection errors yield false;
// it never returns an error.
func (a *Authenticator) TestCredential(ctx context.Context, address, secret string) bool {
	ctx, cancel := context.WithTimeout(ctx, a.client.config.InfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.baseURL(address)+statusPath, nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(devUser, secret)

	resp, err := a.client.http.Do(req)
	if err != nil {
		a.logger.Debug("credential check failed", "address", address, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}
