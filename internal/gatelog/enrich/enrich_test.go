package enrich_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/enrich"
)

func newGemini(t *testing.T, ts *httptest.Server, endpoint string) *enrich.GeminiClient {
	t.Helper()
	c, err := enrich.NewGeminiClient(context.Background(), ts.Client(), enrich.GeminiConfig{
		Endpoint: endpoint,
		APIKey:   "k-123",
	})
	require.NoError(t, err)
	return c
}

func TestGeminiClient_Generate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Purpose: Lab tour."}]}}]}`)
	}))
	defer ts.Close()

	got, err := newGemini(t, ts, ts.URL+"/").Generate(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "Purpose: Lab tour.", got)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "k-123", gotKey)

	contents := gotBody["contents"].([]any)
	require.Len(t, contents, 1)
	turn := contents[0].(map[string]any)
	assert.Equal(t, "user", turn["role"])
	assert.Equal(t, "hello", turn["parts"].([]any)[0].(map[string]any)["text"])
}

func TestGeminiClient_UnexpectedShapes(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates": `{"candidates":[]}`,
		"no content":    `{"candidates":[{}]}`,
		"no parts":      `{"candidates":[{"content":{"parts":[]}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, body)
			}))
			defer ts.Close()

			_, err := newGemini(t, ts, ts.URL).Generate(context.Background(), "x")
			assert.ErrorIs(t, err, enrich.ErrUnexpectedResponse)
		})
	}
}

func TestGeminiClient_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	}))
	defer ts.Close()

	_, err := newGemini(t, ts, ts.URL).Generate(context.Background(), "x")
	assert.ErrorContains(t, err, "400")

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	}))
	defer garbage.Close()

	_, err = newGemini(t, garbage, garbage.URL).Generate(context.Background(), "x")
	assert.Error(t, err)
}

func TestANPRClient_Recognize(t *testing.T) {
	var gotType string
	var gotLen int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotLen = len(b)
		_, _ = io.WriteString(w, `{"plate":"TG01AB1234","confidence":0.93}`)
	}))
	defer ts.Close()

	c := enrich.NewANPRClient(ts.Client(), ts.URL, 0.5)
	got, err := c.Recognize(context.Background(), []byte{0xff, 0xd8, 0xff, 0xe0})
	require.NoError(t, err)
	assert.Equal(t, "TG01AB1234", got)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, 4, gotLen)
}

func TestANPRClient_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"empty plate":    `{"plate":"","confidence":0.99}`,
		"low confidence": `{"plate":"TG01AB1234","confidence":0.2}`,
		"bad json":       `nope`,
	} {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer ts.Close()

			c := enrich.NewANPRClient(ts.Client(), ts.URL, 0.5)
			_, err := c.Recognize(context.Background(), []byte{1})
			assert.Error(t, err)
		})
	}
}
