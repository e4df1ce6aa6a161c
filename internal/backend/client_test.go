/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"goinstruct/internal/domain"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, repo Repository) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(NewHandler(repo, testSecret))
	t.Cleanup(srv.Close)
	tok, err := SignToken(testSecret, "p1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	return srv, NewClient(srv.URL+"/", tok, WithTimeout(2*time.Second))
}

func sampleData() domain.ExperimentData {
	return domain.ExperimentData{
		ExpParams:  map[string]any{"rounds": 3},
		PlayerData: map[string]any{"displayname": "Ann"},
	}
}

func TestClientFetchesParametersAndInstructions(t *testing.T) {
	lines := []string{"{% page Intro %}", "Hello {% displayname %}"}
	_, c := newTestServer(t, NewMemoryRepository(lines, sampleData()))
	ctx := context.Background()

	data, err := c.GetParameters(ctx)
	if err != nil {
		t.Fatalf("GetParameters: %v", err)
	}
	if data.DisplayName() != "Ann" {
		t.Fatalf("displayname = %q", data.DisplayName())
	}
	got, err := c.GetInstructions(ctx)
	if err != nil {
		t.Fatalf("GetInstructions: %v", err)
	}
	if len(got) != 2 || got[1] != lines[1] {
		t.Fatalf("unexpected lines: %#v", got)
	}
}

func TestClientUpdatePageUsesTokenSubject(t *testing.T) {
	repo := NewMemoryRepository([]string{"x"}, sampleData())
	_, c := newTestServer(t, repo)
	p := domain.Progress{Subject: "spoofed", CurrentPage: 2, LastCompletedPage: 2, LastPage: 3}
	if err := c.ReportProgress(context.Background(), p); err != nil {
		t.Fatalf("ReportProgress: %v", err)
	}
	if got := repo.Progress("spoofed"); len(got) != 0 {
		t.Fatalf("progress stored under body subject: %+v", got)
	}
	got := repo.Progress("p1")
	if len(got) != 1 || got[0].CurrentPage != 2 || got[0].Complete {
		t.Fatalf("unexpected progress: %+v", got)
	}
}

func TestClientUpdatePageRejectsInvalidPage(t *testing.T) {
	_, c := newTestServer(t, NewMemoryRepository([]string{"x"}, sampleData()))
	err := c.UpdatePage(context.Background(), domain.Progress{CurrentPage: 0})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}

type failingRepo struct{ MemoryRepository }

func (*failingRepo) Parameters(context.Context, string) (domain.ExperimentData, error) {
	return domain.ExperimentData{}, ErrUnknownParticipant
}

func TestGetParametersErrorPayloadAborts(t *testing.T) {
	_, c := newTestServer(t, &failingRepo{})
	_, err := c.GetParameters(context.Background())
	if !errors.Is(err, ErrParameters) {
		t.Fatalf("expected ErrParameters, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown participant") {
		t.Fatalf("error should carry server message: %v", err)
	}
}

func TestGetParametersErrorPayloadWith200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"session closed"}`))
	}))
	defer srv.Close()
	_, err := NewClient(srv.URL, "").GetParameters(context.Background())
	if !errors.Is(err, ErrParameters) || !strings.Contains(err.Error(), "session closed") {
		t.Fatalf("expected ErrParameters with message, got %v", err)
	}
}

func TestGetParametersRejectsInvalidPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"exp_data":{"exp_params":{}}}`))
	}))
	defer srv.Close()
	_, err := NewClient(srv.URL, "").GetParameters(context.Background())
	if !errors.Is(err, ErrParameters) {
		t.Fatalf("expected ErrParameters for schema violation, got %v", err)
	}
}

func TestEndpointsRequireToken(t *testing.T) {
	srv, _ := newTestServer(t, NewMemoryRepository([]string{"x"}, sampleData()))
	c := NewClient(srv.URL, "")
	_, err := c.GetInstructions(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	c.Token = "garbage"
	if _, err := c.GetInstructions(context.Background()); !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %v", err)
	}
}

func TestRequestTokenRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, NewMemoryRepository([]string{"{% page A %}"}, sampleData()))
	c := NewClient(srv.URL, "")
	exp, err := c.RequestToken(context.Background(), testSecret, "p9", 10*time.Minute)
	if err != nil {
		t.Fatalf("RequestToken: %v", err)
	}
	if exp.Before(time.Now()) {
		t.Fatalf("expiry in the past: %v", exp)
	}
	if _, err := c.GetInstructions(context.Background()); err != nil {
		t.Fatalf("GetInstructions with issued token: %v", err)
	}
}

func TestRequestTokenNeedsSecret(t *testing.T) {
	srv, _ := newTestServer(t, NewMemoryRepository([]string{"{% page A %}"}, sampleData()))
	for _, secret := range []string{"", "wrong-secret"} {
		c := NewClient(srv.URL, "")
		_, err := c.RequestToken(context.Background(), secret, "p9", time.Minute)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
			t.Fatalf("secret %q: expected 403, got %v", secret, err)
		}
		if c.Token != "" {
			t.Fatalf("secret %q: token stored after refusal", secret)
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, NewMemoryRepository(nil, sampleData()))
	for _, p := range []string{"/healthz", "/readyz", "/version"} {
		resp, err := http.Get(srv.URL + p)
		if err != nil {
			t.Fatalf("GET %s: %v", p, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", p, resp.StatusCode)
		}
	}
}

func TestInstructionsMissingScriptIs404(t *testing.T) {
	_, c := newTestServer(t, NewMemoryRepository(nil, sampleData()))
	_, err := c.GetInstructions(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
