package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropcast/dropcast/internal/service/publisher"
	"github.com/dropcast/dropcast/pkg/util"
)

// ProcessingStatus is the server-side state of a media container.
type ProcessingStatus string

const (
	StatusInProgress ProcessingStatus = "IN_PROGRESS"
	StatusFinished   ProcessingStatus = "FINISHED"
	StatusError      ProcessingStatus = "ERROR"
)

// Client talks to the Graph API for one account.
type Client struct {
	logger      *zap.Logger
	client      *http.Client
	apiBase     string
	accountID   string
	accessToken string
}

func NewClient(apiBase, accountID, accessToken string, logger *zap.Logger) *Client {
	return &Client{
		logger:      logger,
		apiBase:     apiBase,
		accountID:   accountID,
		accessToken: accessToken,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ContainerParams describes the media container to stage before publish.
type ContainerParams struct {
	SourceURL   string
	Caption     string
	Kind        util.MediaKind
	ShareToFeed bool
}

// CreateContainer stages a media container and returns its creation id.
// A success status without an id in the body is still a failure: the id is
// required to publish.
func (c *Client) CreateContainer(ctx context.Context, params ContainerParams) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media", c.apiBase, c.accountID)

	form := url.Values{}
	form.Set("access_token", c.accessToken)
	form.Set("caption", params.Caption)
	if params.Kind == util.MediaVideo {
		form.Set("media_type", "REELS")
		form.Set("video_url", params.SourceURL)
		if !params.ShareToFeed {
			form.Set("share_to_feed", "false")
		}
	} else {
		form.Set("image_url", params.SourceURL)
	}

	body, err := c.postForm(ctx, endpoint, form)
	if err != nil {
		return "", publisher.Failf(publisher.FailContainerCreation, "%s", err.Error())
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", publisher.Failf(publisher.FailMissingCreationID, "unparseable creation response: %s", string(body))
	}
	if response.ID == "" {
		return "", publisher.Failf(publisher.FailMissingCreationID, "creation response carried no id: %s", string(body))
	}

	c.logger.Debug("Media container created",
		zap.String("container_id", response.ID),
		zap.String("kind", string(params.Kind)))

	return response.ID, nil
}

// ContainerStatus polls the processing state of a container.
func (c *Client) ContainerStatus(ctx context.Context, containerID string) (ProcessingStatus, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
		c.apiBase, containerID, url.QueryEscape(c.accessToken))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status request returned %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		StatusCode string `json:"status_code"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to decode status response: %w", err)
	}

	return ProcessingStatus(response.StatusCode), nil
}

// Publish makes a staged container live.
func (c *Client) Publish(ctx context.Context, containerID string) error {
	endpoint := fmt.Sprintf("%s/%s/media_publish", c.apiBase, c.accountID)

	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", c.accessToken)

	if _, err := c.postForm(ctx, endpoint, form); err != nil {
		return publisher.Failf(publisher.FailPublish, "%s", err.Error())
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph API returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
