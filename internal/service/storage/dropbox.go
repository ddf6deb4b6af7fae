package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dropcast/dropcast/pkg/util"
)

// Item is one publishable file found in the inbox folder.
type Item struct {
	ID             string
	Name           string
	PathLower      string
	Size           int64
	ServerModified time.Time
	Kind           util.MediaKind
}

// Fingerprint returns the dedup key for this item.
func (i Item) Fingerprint() string {
	return util.Fingerprint(i.ID, i.ServerModified)
}

// Client talks to the Dropbox HTTP API with a short-lived access token
// obtained at the start of the run.
type Client struct {
	logger      *zap.Logger
	client      *http.Client
	apiBase     string
	accessToken string
}

func NewClient(apiBase, accessToken string, logger *zap.Logger) *Client {
	return &Client{
		logger:      logger,
		apiBase:     apiBase,
		accessToken: accessToken,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type listFolderEntry struct {
	Tag            string    `json:".tag"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PathLower      string    `json:"path_lower"`
	Size           int64     `json:"size"`
	ServerModified time.Time `json:"server_modified"`
}

type listFolderResponse struct {
	Entries []listFolderEntry `json:"entries"`
	Cursor  string            `json:"cursor"`
	HasMore bool              `json:"has_more"`
}

// ListFolder returns the publishable files in a folder, filtered to the
// supported media extensions, in listing order.
func (c *Client) ListFolder(ctx context.Context, folder string) ([]Item, error) {
	var items []Item

	url := c.apiBase + "/files/list_folder"
	body := map[string]any{"path": folder}

	for {
		var response listFolderResponse
		if err := c.post(ctx, url, body, &response); err != nil {
			return nil, err
		}

		for _, entry := range response.Entries {
			if entry.Tag != "file" {
				continue
			}
			kind, ok := util.KindForName(entry.Name)
			if !ok {
				continue
			}
			items = append(items, Item{
				ID:             entry.ID,
				Name:           entry.Name,
				PathLower:      entry.PathLower,
				Size:           entry.Size,
				ServerModified: entry.ServerModified,
				Kind:           kind,
			})
		}

		if !response.HasMore {
			break
		}
		url = c.apiBase + "/files/list_folder/continue"
		body = map[string]any{"cursor": response.Cursor}
	}

	c.logger.Debug("Listed inbox folder",
		zap.String("folder", folder),
		zap.Int("items", len(items)))

	return items, nil
}

// TemporaryLink resolves a short-lived fetch URL for a file.
func (c *Client) TemporaryLink(ctx context.Context, path string) (string, error) {
	var response struct {
		Link string `json:"link"`
	}
	err := c.post(ctx, c.apiBase+"/files/get_temporary_link", map[string]any{"path": path}, &response)
	if err != nil {
		return "", err
	}
	if response.Link == "" {
		return "", fmt.Errorf("temporary link response carried no link")
	}
	return response.Link, nil
}

// Delete removes a published file from the inbox folder.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.post(ctx, c.apiBase+"/files/delete_v2", map[string]any{"path": path}, nil)
}

func (c *Client) post(ctx context.Context, url string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dropbox API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
