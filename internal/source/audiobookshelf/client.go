// Package audiobookshelf reads listening progress from an Audiobookshelf server.
package audiobookshelf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mrlokans/shelfsync/internal/entities"
	"github.com/mrlokans/shelfsync/internal/logging"
	"github.com/mrlokans/shelfsync/internal/source"
)

const defaultTimeout = 30 * time.Second

var errNotFound = errors.New("not found")

// Config holds the settings of an Audiobookshelf client.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client talks to the Audiobookshelf REST API with an API token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a new Audiobookshelf client
func NewClient(cfg Config, logger *log.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type libraryItem struct {
	ID    string `json:"id"`
	Media struct {
		Duration float64 `json:"duration"`
		Tracks   []struct {
			Duration float64 `json:"duration"`
		} `json:"tracks"`
		Metadata struct {
			Title      string `json:"title"`
			AuthorName string `json:"authorName"`
			ISBN       string `json:"isbn"`
			ASIN       string `json:"asin"`
		} `json:"metadata"`
	} `json:"media"`
	Progress      *mediaProgress `json:"progress"`
	MediaProgress *mediaProgress `json:"mediaProgress"`
}

type mediaProgress struct {
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	IsFinished  bool    `json:"isFinished"`
	LastUpdate  int64   `json:"lastUpdate"`
}

// TestConnection lists the server's libraries.
func (c *Client) TestConnection(ctx context.Context) error {
	var resp struct {
		Libraries []json.RawMessage `json:"libraries"`
	}
	return c.getJSON(ctx, "/api/libraries", &resp)
}

// ListInProgress returns the items the user is listening to, excluding those listened
// to for less than minListenSeconds. Items whose listing lacks progress have it
// fetched separately; items without any progress, or whose progress cannot be read,
// are skipped. Only an unavailable server fails the listing.
func (c *Client) ListInProgress(ctx context.Context, minListenSeconds float64) ([]entities.ProgressRecord, error) {
	var resp struct {
		LibraryItems []libraryItem `json:"libraryItems"`
	}
	if err := c.getJSON(ctx, "/api/me/items-in-progress", &resp); err != nil {
		return nil, fmt.Errorf("failed to list items in progress: %w", err)
	}

	records := make([]entities.ProgressRecord, 0, len(resp.LibraryItems))
	for _, item := range resp.LibraryItems {
		progress := item.Progress
		if progress == nil {
			progress = item.MediaProgress
		}
		if progress == nil {
			p, err := c.progress(ctx, item.ID)
			if errors.Is(err, source.ErrUnavailable) {
				return nil, err
			}
			if err != nil {
				c.logger.Warn("skipping item with unreadable progress", "item_id", item.ID, "err", err)
				continue
			}
			progress = p
		}
		if progress == nil {
			continue
		}

		record := parseProgress(item, progress)
		if !record.MeetsEngagement(minListenSeconds) {
			c.logger.Debug("skipping book below minimum listen time",
				"title", record.Title, "listened_minutes", record.ListenedMinutes())
			continue
		}
		records = append(records, record)
	}

	c.logger.Info("retrieved books in progress",
		"total", len(resp.LibraryItems), "filtered", len(records), "min_listen_minutes", minListenSeconds/60)

	return records, nil
}

// GetItem returns the raw item payload, or nil if the item does not exist.
func (c *Client) GetItem(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.getJSON(ctx, "/api/items/"+url.PathEscape(id), &raw)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// progress fetches the user's progress of one item, or nil when there is none.
func (c *Client) progress(ctx context.Context, id string) (*mediaProgress, error) {
	var p mediaProgress
	err := c.getJSON(ctx, "/api/me/progress/"+url.PathEscape(id), &p)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress of %s: %w", id, err)
	}
	return &p, nil
}

func parseProgress(item libraryItem, progress *mediaProgress) entities.ProgressRecord {
	duration := item.Media.Duration
	if duration <= 0 {
		for _, t := range item.Media.Tracks {
			duration += t.Duration
		}
	}
	if duration <= 0 {
		duration = progress.Duration
	}

	title := item.Media.Metadata.Title
	if title == "" {
		title = "Unknown"
	}

	record := entities.NewProgressRecord(item.ID, title, progress.CurrentTime, duration, progress.IsFinished)
	record.Author = item.Media.Metadata.AuthorName
	record.ISBN = item.Media.Metadata.ISBN
	record.ASIN = item.Media.Metadata.ASIN
	if progress.LastUpdate > 0 {
		t := time.UnixMilli(progress.LastUpdate)
		record.LastUpdate = &t
	}
	return record
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: invalid API token", source.ErrUnavailable)
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server error HTTP %d", source.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
