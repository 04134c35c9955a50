// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSTTTranscribeSendsMultipartAndParsesResponse(t *testing.T) {
	var gotAuth, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer server.Close()

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "note.ogg")
	require.NoError(t, os.WriteFile(audioPath, []byte("fake audio bytes"), 0o644))

	stt := NewSTT(server.URL, "sk-test", "")
	text, err := stt.Transcribe(context.Background(), audioPath)
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "whisper-1", gotModel)
}

func TestSTTTranscribeFailsWithoutAPIKey(t *testing.T) {
	stt := NewSTT("http://example.invalid", "", "")
	_, err := stt.Transcribe(context.Background(), "/tmp/does-not-matter")
	require.Error(t, err)
}

func TestSTTTranscribeSurfacesNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid key"))
	}))
	defer server.Close()

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "note.ogg")
	require.NoError(t, os.WriteFile(audioPath, []byte("x"), 0o644))

	stt := NewSTT(server.URL, "sk-test", "")
	_, err := stt.Transcribe(context.Background(), audioPath)
	require.Error(t, err)
}
