package transport

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if withFile {
		part, err := form.CreateFormFile("audio_file", "speech.wav")
		require.NoError(t, err)
		_, err = part.Write([]byte("RIFF"))
		require.NoError(t, err)
	}
	for name, value := range fields {
		require.NoError(t, form.WriteField(name, value))
	}
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/transcribe", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func serveUpload(t *testing.T, handler *TranscribeHandler, req *http.Request) (int, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	NewRouter(Routes{Transcribe: handler}, nil).ServeHTTP(rec, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return rec.Code, payload
}

func TestTranscribeUploadReturnsResult(t *testing.T) {
	t.Parallel()

	code, payload := serveUpload(t, &TranscribeHandler{NewRelay: stubFactory}, uploadRequest(t, map[string]string{
		"language":   "de",
		"model":      "tiny",
		"timestamps": "true",
	}, true))

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "success", payload["status"])

	result, ok := payload["result"].(map[string]any)
	require.True(t, ok)
	text, _ := result["text"].(string)
	require.True(t, strings.HasPrefix(text, "heard "), text)

	// The upload is scratch data and is gone once the response is written.
	audioPath := strings.TrimPrefix(text, "heard ")
	require.True(t, strings.HasSuffix(audioPath, ".wav"))
	_, err := os.Stat(audioPath)
	require.True(t, os.IsNotExist(err))
}

func TestTranscribeUploadRequiresFile(t *testing.T) {
	t.Parallel()

	code, payload := serveUpload(t, &TranscribeHandler{NewRelay: stubFactory}, uploadRequest(t, map[string]string{"model": "tiny"}, false))

	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "error", payload["status"])
	require.Contains(t, payload["message"], "audio_file")
}

func TestTranscribeUploadRejectsBadTimestamps(t *testing.T) {
	t.Parallel()

	code, payload := serveUpload(t, &TranscribeHandler{NewRelay: stubFactory}, uploadRequest(t, map[string]string{"timestamps": "sometimes"}, true))

	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "timestamps must be a boolean", payload["message"])
}

func TestTranscribeUploadReportsLoadFailure(t *testing.T) {
	t.Parallel()

	code, payload := serveUpload(t, &TranscribeHandler{NewRelay: brokenFactory}, uploadRequest(t, nil, true))

	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, map[string]any{"status": "error", "message": "network error"}, payload)
}

func TestTranscribeUploadEnforcesSizeLimit(t *testing.T) {
	t.Parallel()

	code, payload := serveUpload(t, &TranscribeHandler{NewRelay: stubFactory, MaxUploadBytes: 16}, uploadRequest(t, nil, true))

	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "error", payload["status"])
}

func TestHealthAliasMatchesHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewRouter(Routes{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
