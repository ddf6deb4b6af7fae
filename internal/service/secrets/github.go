package secrets

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/box"
)

// Client pushes encrypted values into a repository's Actions secrets.
// Values are sealed against the repository public key, so only the secrets
// backend can open them.
type Client struct {
	logger  *zap.Logger
	client  *http.Client
	apiBase string
	repo    string
	token   string
}

func NewClient(apiBase, repo, token string, logger *zap.Logger) *Client {
	return &Client{
		logger:  logger,
		apiBase: apiBase,
		repo:    repo,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RepoPublicKey is the store-provided encryption key for a repository.
type RepoPublicKey struct {
	KeyID string `json:"key_id"`
	Key   string `json:"key"`
}

// PublicKey fetches the repository's current secrets public key.
func (c *Client) PublicKey(ctx context.Context) (*RepoPublicKey, error) {
	url := fmt.Sprintf("%s/repos/%s/actions/secrets/public-key", c.apiBase, c.repo)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("public key request returned status %d: %s", resp.StatusCode, string(body))
	}

	var key RepoPublicKey
	if err := json.NewDecoder(resp.Body).Decode(&key); err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if key.Key == "" || key.KeyID == "" {
		return nil, fmt.Errorf("public key response was incomplete")
	}
	return &key, nil
}

// PutSecret seals value against the repository public key and uploads it
// under the given secret name. The remote value is overwritten
// unconditionally.
func (c *Client) PutSecret(ctx context.Context, name, value string) error {
	key, err := c.PublicKey(ctx)
	if err != nil {
		return err
	}

	sealed, err := Seal(value, key.Key)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/repos/%s/actions/secrets/%s", c.apiBase, c.repo, name)
	payload, err := json.Marshal(map[string]string{
		"encrypted_value": sealed,
		"key_id":          key.KeyID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal secret payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload secret: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("secret upload returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Info("Remote secret updated", zap.String("secret", name))
	return nil
}

// Seal encrypts value with an anonymous NaCl sealed box against a
// base64-encoded 32-byte public key and returns the base64 ciphertext.
func Seal(value, publicKeyB64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("public key has unexpected length %d", len(raw))
	}

	var key [32]byte
	copy(key[:], raw)

	sealed, err := box.SealAnonymous(nil, []byte(value), &key, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to seal secret: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
}
