package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/dropcast/dropcast/internal/config"
)

// CredentialError is fatal to the run: it aborts before any publish
// attempt, and the refresh is not retried until the next scheduled run.
type CredentialError struct {
	Account string
	Err     error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential refresh for %s failed: %v", e.Account, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// SecretStore receives the refreshed token for out-of-process consumers.
type SecretStore interface {
	PutSecret(ctx context.Context, name, value string) error
}

// TokenBundle is the run-scoped credential state. It is never cached
// across runs; every run starts from a forced refresh.
type TokenBundle struct {
	AccessToken string
	RefreshedAt time.Time
}

// CredentialService exchanges the long-lived refresh credential for a
// short-lived access token and propagates it to the remote secret store.
type CredentialService struct {
	logger   *zap.Logger
	secrets  SecretStore
	tokenURL string
	client   *http.Client
}

func NewCredentialService(tokenURL string, secrets SecretStore, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		logger:   logger,
		secrets:  secrets,
		tokenURL: tokenURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Refresh obtains a fresh access token for the account. It always
// refreshes regardless of any previous token's remaining validity, and it
// overwrites the remote secret unconditionally so the secret never drifts
// from the token the run is using.
func (s *CredentialService) Refresh(ctx context.Context, account *config.AccountConfig) (*TokenBundle, error) {
	if missing := missingCredentials(account); len(missing) > 0 {
		return nil, &CredentialError{
			Account: account.Name,
			Err:     fmt.Errorf("missing required credentials: %s", strings.Join(missing, ", ")),
		}
	}

	s.logger.Info("Refreshing storage access token", zap.String("account", account.Name))

	conf := &oauth2.Config{
		ClientID:     account.DropboxAppKey,
		ClientSecret: account.DropboxAppSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: s.tokenURL,
		},
	}

	// A token with no access value and no expiry forces TokenSource to hit
	// the refresh grant immediately.
	seed := &oauth2.Token{RefreshToken: account.DropboxRefreshToken}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := conf.TokenSource(ctx, seed).Token()
	if err != nil {
		return nil, &CredentialError{Account: account.Name, Err: err}
	}
	if token.AccessToken == "" {
		return nil, &CredentialError{
			Account: account.Name,
			Err:     fmt.Errorf("token response carried no access token"),
		}
	}

	if account.SecretName != "" {
		if err := s.secrets.PutSecret(ctx, account.SecretName, token.AccessToken); err != nil {
			return nil, &CredentialError{
				Account: account.Name,
				Err:     fmt.Errorf("failed to propagate token to secret store: %w", err),
			}
		}
	}

	s.logger.Info("Storage token refreshed and propagated",
		zap.String("account", account.Name),
		zap.String("secret", account.SecretName))

	return &TokenBundle{
		AccessToken: token.AccessToken,
		RefreshedAt: time.Now().UTC(),
	}, nil
}

func missingCredentials(account *config.AccountConfig) []string {
	var missing []string
	if account.DropboxRefreshToken == "" {
		missing = append(missing, "dropbox_refresh_token")
	}
	if account.DropboxAppKey == "" {
		missing = append(missing, "dropbox_app_key")
	}
	if account.DropboxAppSecret == "" {
		missing = append(missing, "dropbox_app_secret")
	}
	return missing
}
