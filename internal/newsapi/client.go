// Package newsapi is the HTTP client for the news store service: the
// existence gate, post creation, and media upload.
package newsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client talks to the store service. All calls share one http.Client with a
// per-request timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a store client. A non-positive timeout falls back to the
// default.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("newsapi: base url is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// CreateRequest is the body of a post-creation call.
type CreateRequest struct {
	Channel  string   `json:"channel"`
	IDPost   uint64   `json:"id_post"`
	Time     string   `json:"time"`
	URL      string   `json:"url"`
	Text     string   `json:"text"`
	Outlinks []string `json:"outlinks"`
}

// UploadFile is one media file to attach to a post.
type UploadFile struct {
	Path        string // local path of the downloaded file
	FileName    string // name reported in the multipart part
	ContentType string // image/jpeg or video/mp4
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

// Exists reports whether the store already holds a record for
// (channel, idPost). A transport or service failure is returned as an error,
// never folded into false: callers must skip the post on gate failure rather
// than risk a duplicate create.
func (c *Client) Exists(ctx context.Context, channel string, idPost uint64) (bool, error) {
	url := fmt.Sprintf("%s/exists/%s/%d", c.baseURL, channel, idPost)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("newsapi: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("newsapi: existence check %s/%d: %w", channel, idPost, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("newsapi: existence check %s/%d: status %d", channel, idPost, resp.StatusCode)
	}

	var body existsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("newsapi: decode existence response: %w", err)
	}

	return body.Exists, nil
}

// Create records a new post in the store. Idempotency is the caller's
// responsibility: Create is only meaningful after Exists returned false.
func (c *Client) Create(ctx context.Context, in CreateRequest) error {
	if in.Outlinks == nil {
		in.Outlinks = []string{}
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("newsapi: marshal create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("newsapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("newsapi: create %s/%d: %w", in.Channel, in.IDPost, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("newsapi: create %s/%d: status %d", in.Channel, in.IDPost, resp.StatusCode)
	}

	return nil
}

// UploadMedia attaches downloaded files to an already-created post. Files are
// sent as repeated "files" multipart parts.
func (c *Client) UploadMedia(ctx context.Context, idPost uint64, channel string, files []UploadFile) error {
	if len(files) == 0 {
		return errors.New("newsapi: no files to upload")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, file := range files {
		if err := writeFilePart(writer, file); err != nil {
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("newsapi: finish multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/upload-media/%d/%s", c.baseURL, idPost, channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("newsapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("newsapi: upload media %s/%d: %w", channel, idPost, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("newsapi: upload media %s/%d: status %d", channel, idPost, resp.StatusCode)
	}

	return nil
}

// Ping checks that the store answers HTTP at all. Used by the doctor command.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("newsapi: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("newsapi: ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return nil
}

func writeFilePart(writer *multipart.Writer, file UploadFile) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("newsapi: open media file: %w", err)
	}
	defer func() { _ = f.Close() }()

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, file.FileName))
	header.Set("Content-Type", file.ContentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("newsapi: create multipart part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("newsapi: copy media file: %w", err)
	}

	return nil
}
