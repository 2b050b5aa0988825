// Package regulated uploads documents to the regulated interbank channel.
// Every upload happens inside a session that must be closed afterwards.
package regulated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("regulated: channel url is not configured")

// Config identifies this subscriber on the channel.
type Config struct {
	BaseURL   string
	HostID    string
	PartnerID string
	UserID    string
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// StatusError is returned when the channel answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("regulated: %s: status %d: %s", e.Op, e.Status, e.Body)
}

type sessionResponse struct {
	ID string `json:"id"`
}

// OpenSession starts an upload session.
func (c *Client) OpenSession(ctx context.Context) (*Session, error) {
	if c.cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	payload, err := json.Marshal(map[string]string{
		"host_id":    c.cfg.HostID,
		"partner_id": c.cfg.PartnerID,
		"user_id":    c.cfg.UserID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sessions"), strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, "open session")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("regulated: decode session: %w", err)
	}
	if sr.ID == "" {
		return nil, errors.New("regulated: channel returned an empty session id")
	}
	return &Session{client: c, ID: sr.ID}, nil
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// Session is an open upload session.
type Session struct {
	client *Client
	ID     string
}

// Send uploads the file at path as one order.
func (s *Session) Send(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.client.endpoint("sessions", s.ID, "orders", filepath.Base(path)), f)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.do(req, "upload "+filepath.Base(path))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Close ends the session.
func (s *Session) Close(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.client.endpoint("sessions", s.ID), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.do(req, "close session")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
