/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"goinstruct/internal/domain"
	applog "goinstruct/internal/log"
)

// ErrParameters is returned when get_parameters answers with an error payload.
var ErrParameters = errors.New("experiment parameters unavailable")

// APIError is a non-2xx response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("server %s %s: %d", e.Method, e.Path, e.Status)
}

// Client talks to the instruction server.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
	log     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification. Development only.
func WithInsecureTLS(insecure bool) ClientOption {
	return func(c *Client) {
		if !insecure {
			return
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		c.client.Transport = tr
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.client = h
		}
	}
}

// NewClient creates a client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     applog.WithComponent("backend"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	return c.doWith(ctx, method, path, nil, body, dest)
}

func (c *Client) doWith(ctx context.Context, method, path string, hdr http.Header, body any, dest any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if dest == nil {
		return nil
	}
	if d, ok := dest.(*[]byte); ok {
		*d = raw
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dest)
}

// RequestToken asks the server for a bearer token for subject and stores it
// on the client. secret is the server's signing secret; only operators
// holding it can issue tokens.
func (c *Client) RequestToken(ctx context.Context, secret, subject string, ttl time.Duration) (time.Time, error) {
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	body := map[string]any{"subject": subject, "ttl_seconds": int64(ttl / time.Second)}
	hdr := http.Header{}
	hdr.Set(HeaderIssuerSecret, secret)
	if err := c.doWith(ctx, http.MethodPost, PathToken, hdr, body, &resp); err != nil {
		return time.Time{}, err
	}
	c.Token = resp.Token
	exp, _ := time.Parse(time.RFC3339, resp.ExpiresAt)
	return exp, nil
}

// GetParameters fetches and validates the experiment payload. An error payload
// from the server aborts with ErrParameters.
func (c *Client) GetParameters(ctx context.Context) (domain.ExperimentData, error) {
	var raw []byte
	err := c.do(ctx, http.MethodGet, PathParameters, nil, &raw)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return domain.ExperimentData{}, fmt.Errorf("%w: %s", ErrParameters, apiErr.Message)
	}
	if err != nil {
		return domain.ExperimentData{}, err
	}
	var env struct {
		ExpData json.RawMessage `json:"exp_data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.ExperimentData{}, fmt.Errorf("decode parameters: %w", err)
	}
	if env.Error != "" {
		return domain.ExperimentData{}, fmt.Errorf("%w: %s", ErrParameters, env.Error)
	}
	if len(env.ExpData) == 0 || string(env.ExpData) == "null" {
		return domain.ExperimentData{}, fmt.Errorf("%w: missing exp_data", ErrParameters)
	}
	data, err := domain.Decode(env.ExpData)
	if err != nil {
		return domain.ExperimentData{}, fmt.Errorf("%w: %w", ErrParameters, err)
	}
	return data, nil
}

// GetInstructions fetches the script lines.
func (c *Client) GetInstructions(ctx context.Context) ([]string, error) {
	var resp domain.InstructionsResponse
	if err := c.do(ctx, http.MethodGet, PathInstructions, nil, &resp); err != nil {
		return nil, err
	}
	return resp.InstructionLines, nil
}

// UpdatePage posts the current page and completion flag.
func (c *Client) UpdatePage(ctx context.Context, p domain.Progress) error {
	if err := c.do(ctx, http.MethodPost, PathUpdatePage, p, nil); err != nil {
		c.log.Warn("update_page failed", slog.Int("page", p.CurrentPage), slog.Any("err", err))
		return err
	}
	return nil
}

// ReportProgress lets the client serve as a session progress reporter.
func (c *Client) ReportProgress(ctx context.Context, p domain.Progress) error {
	return c.UpdatePage(ctx, p)
}
