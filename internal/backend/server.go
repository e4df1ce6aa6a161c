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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"goinstruct/internal/domain"
	applog "goinstruct/internal/log"
	"goinstruct/internal/version"
)

// Endpoint paths shared by client and server.
const (
	PathParameters   = "/instruction_client/get_parameters"
	PathInstructions = "/instruction_client/get_instructions"
	PathUpdatePage   = "/instruction_client/update_page"
	PathToken        = "/api/auth/token"
)

// DevSecret is used when no auth secret is configured.
const DevSecret = "dev-secret-change-me"

// NewHandler wires the instruction endpoints over repo. Every instruction
// endpoint requires a bearer token; its subject selects the participant.
// Tokens are issued only to callers presenting secret in HeaderIssuerSecret.
func NewHandler(repo Repository, secret string) http.Handler {
	l := applog.WithComponent("backend")
	if secret == "" {
		secret = DevSecret
		l.Warn("auth secret not set; using insecure dev secret")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repo.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(version.String()))
	})

	// POST /api/auth/token {subject, ttl_seconds} -> {token, expires_at}
	mux.HandleFunc("POST "+PathToken, withIssuer(secret, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Subject    string `json:"subject"`
			TTLSeconds int64  `json:"ttl_seconds"`
		}
		b, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		_ = r.Body.Close()
		_ = json.Unmarshal(b, &req)
		if req.Subject == "" {
			writeError(w, http.StatusBadRequest, errors.New("subject is required"))
			return
		}
		if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
			req.TTLSeconds = 3600
		}
		exp := time.Now().Add(time.Duration(req.TTLSeconds) * time.Second)
		tok, err := SignToken(secret, req.Subject, exp)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      tok,
			"expires_at": exp.UTC().Format(time.RFC3339),
		})
	}))

	mux.HandleFunc("GET "+PathParameters, withAuth(secret, func(w http.ResponseWriter, r *http.Request, sub string) {
		data, err := repo.Parameters(r.Context(), sub)
		if err != nil {
			// clients abort on an error payload
			l.Warn("get_parameters failed", slog.String("subject", sub), slog.Any("err", err))
			writeJSON(w, statusFor(err), domain.ParametersResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, domain.ParametersResponse{ExpData: &data})
	}))

	mux.HandleFunc("GET "+PathInstructions, withAuth(secret, func(w http.ResponseWriter, r *http.Request, sub string) {
		lines, err := repo.Instructions(r.Context(), sub)
		if err != nil {
			l.Warn("get_instructions failed", slog.String("subject", sub), slog.Any("err", err))
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, domain.InstructionsResponse{InstructionLines: lines})
	}))

	mux.HandleFunc("POST "+PathUpdatePage, withAuth(secret, func(w http.ResponseWriter, r *http.Request, sub string) {
		var p domain.Progress
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
		if err := dec.Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode progress: %w", err))
			return
		}
		if p.CurrentPage < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid currentPage %d", p.CurrentPage))
			return
		}
		// the token decides whose progress this is
		p.Subject = sub
		if err := repo.UpdatePage(r.Context(), p); err != nil {
			l.Error("update_page failed", slog.String("subject", sub), slog.Any("err", err))
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))
	return mux
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownParticipant), errors.Is(err, ErrNoScript):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Serve runs the handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	l := applog.WithComponent("backend")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		l.Info("instruction server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
