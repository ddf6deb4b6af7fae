package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropcast/dropcast/internal/config"
)

type fakeSecretStore struct {
	putName  string
	putValue string
	err      error
}

func (f *fakeSecretStore) PutSecret(ctx context.Context, name, value string) error {
	if f.err != nil {
		return f.err
	}
	f.putName = name
	f.putValue = value
	return nil
}

func testAccount() *config.AccountConfig {
	return &config.AccountConfig{
		Name:                "inkwisps",
		DropboxAppKey:       "app-key",
		DropboxAppSecret:    "app-secret",
		DropboxRefreshToken: "refresh-token",
		SecretName:          "DROPBOX_INKWISPS_TOKEN",
	}
}

func TestRefresh_ObtainsTokenAndPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-token", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "sl.fresh", "token_type": "bearer", "expires_in": 14400}`))
	}))
	defer server.Close()

	secrets := &fakeSecretStore{}
	svc := NewCredentialService(server.URL, secrets, zap.NewNop())

	bundle, err := svc.Refresh(context.Background(), testAccount())
	require.NoError(t, err)
	assert.Equal(t, "sl.fresh", bundle.AccessToken)
	assert.False(t, bundle.RefreshedAt.IsZero())

	// The remote secret is overwritten unconditionally on every refresh.
	assert.Equal(t, "DROPBOX_INKWISPS_TOKEN", secrets.putName)
	assert.Equal(t, "sl.fresh", secrets.putValue)
}

func TestRefresh_MissingCredentialsNamed(t *testing.T) {
	account := testAccount()
	account.DropboxRefreshToken = ""
	account.DropboxAppSecret = ""

	svc := NewCredentialService("http://unused", &fakeSecretStore{}, zap.NewNop())
	_, err := svc.Refresh(context.Background(), account)

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, "inkwisps", credErr.Account)
	assert.Contains(t, err.Error(), "dropbox_refresh_token")
	assert.Contains(t, err.Error(), "dropbox_app_secret")
}

func TestRefresh_HTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	svc := NewCredentialService(server.URL, &fakeSecretStore{}, zap.NewNop())
	_, err := svc.Refresh(context.Background(), testAccount())

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
}

func TestRefresh_SecretPushFailureAbortsRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "sl.fresh", "token_type": "bearer"}`))
	}))
	defer server.Close()

	secrets := &fakeSecretStore{err: fmt.Errorf("secret store unreachable")}
	svc := NewCredentialService(server.URL, secrets, zap.NewNop())

	_, err := svc.Refresh(context.Background(), testAccount())
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.True(t, errors.Is(err, secrets.err))
	assert.Contains(t, err.Error(), "secret store")
}
