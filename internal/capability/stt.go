// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Donghh0221/afk/internal/afkerr"
)

// STT transcribes a voice note to text before it is handed to
// send_message. Modelled after original_source/afk/voice/whisper_api.py's
// narrow transcribe(path) -> text contract, implemented here against an
// HTTP transcription endpoint instead of an SDK client.
type STT struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewSTT returns an STT capability gated on apiKey being non-empty; the
// command facade attaches it only when OPENAI_API_KEY is set.
func NewSTT(endpoint, apiKey, model string) *STT {
	if model == "" {
		model = "whisper-1"
	}
	return &STT{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Transcribe uploads the audio file at path and returns its transcript.
func (s *STT) Transcribe(ctx context.Context, path string) (string, error) {
	if s.apiKey == "" {
		return "", &afkerr.ConfigError{Key: "OPENAI_API_KEY", Reason: "not set, STT capability unavailable"}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy audio into request: %w", err)
	}
	if err := writer.WriteField("model", s.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription failed: %s: %s", resp.Status, string(data))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return result.Text, nil
}
