package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/pkg/circuitbreaker"
)

var (
	jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}
	pngBytes  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}
)

// fakeCloud mimics the unsigned upload endpoint.
func fakeCloud(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.NoError(t, r.ParseMultipartForm(1<<20))

		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("upload_preset") != "ml_default" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": map[string]string{"message": "Upload preset not found"}})
			return
		}
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		_, _ = io.Copy(io.Discard, f)

		_ = json.NewEncoder(w).Encode(map[string]string{
			"secure_url": "https://res.example.com/" + hdr.Filename,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(endpoint, preset string) *Client {
	return NewClient(Config{
		Endpoint:        endpoint,
		Preset:          preset,
		Timeout:         5 * time.Second,
		BreakerTimeout:  time.Minute,
		BreakerFailures: 2,
	}, nil, nil)
}

func TestClientUpload(t *testing.T) {
	var calls int32
	srv := fakeCloud(t, &calls)
	c := newTestClient(srv.URL, "ml_default")

	url, err := c.Upload(context.Background(), model.PendingFile{Name: "scan.jpg", ContentType: "image/jpeg", Data: jpegBytes}, BatchTypes)
	require.NoError(t, err)
	assert.Equal(t, "https://res.example.com/scan.jpg", url)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientRejectsBeforeNetwork(t *testing.T) {
	var calls int32
	srv := fakeCloud(t, &calls)
	c := newTestClient(srv.URL, "ml_default")

	tests := []struct {
		name    string
		file    model.PendingFile
		allowed map[string]bool
		wantErr error
	}{
		{
			name:    "declared type not allowed",
			file:    model.PendingFile{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hello")},
			allowed: BatchTypes,
			wantErr: ErrInvalidContentType,
		},
		{
			name:    "executable sniffed behind generic type",
			file:    model.PendingFile{Name: "setup.bin", ContentType: "application/octet-stream", Data: []byte("MZ\x90\x00\x03\x00\x00\x00")},
			allowed: BatchTypes,
			wantErr: ErrInvalidContentType,
		},
		{
			name:    "empty",
			file:    model.PendingFile{Name: "x.png", ContentType: "image/png"},
			allowed: BatchTypes,
			wantErr: ErrEmptyFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Upload(context.Background(), tt.file, tt.allowed)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestContentTypeSniffsGenericDeclarations(t *testing.T) {
	assert.Equal(t, "image/png", ContentType(model.PendingFile{ContentType: "application/octet-stream", Data: pngBytes}))
	assert.Equal(t, "image/jpeg", ContentType(model.PendingFile{Data: jpegBytes}))
	assert.Equal(t, "image/png", ContentType(model.PendingFile{ContentType: "IMAGE/PNG; q=1", Data: jpegBytes}))
	assert.NoError(t, Check(model.PendingFile{Name: "v.mp4", ContentType: "video/mp4", Data: []byte{1}}, BatchTypes))
}

func TestClientSurfacesEndpointErrors(t *testing.T) {
	var calls int32
	srv := fakeCloud(t, &calls)
	c := newTestClient(srv.URL, "wrong")

	_, err := c.Upload(context.Background(), model.PendingFile{Name: "a.png", ContentType: "image/png", Data: pngBytes}, BatchTypes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Upload preset not found")
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"down"}}`))
	}))
	defer srv.Close()
	c := newTestClient(srv.URL, "ml_default")

	file := model.PendingFile{Name: "a.png", ContentType: "image/png", Data: pngBytes}
	for i := 0; i < 2; i++ {
		_, err := c.Upload(context.Background(), file, BatchTypes)
		require.Error(t, err)
	}
	_, err := c.Upload(context.Background(), file, BatchTypes)
	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestUploadAllContinuesPastFailures(t *testing.T) {
	var calls int32
	srv := fakeCloud(t, &calls)
	c := newTestClient(srv.URL, "ml_default")

	res := UploadAll(context.Background(), c, []model.PendingFile{
		{Name: "a.jpg", ContentType: "image/jpeg", Data: jpegBytes},
		{Name: "evil.exe", ContentType: "application/x-msdownload", Data: []byte("MZ")},
		{Name: "b.png", ContentType: "image/png", Data: pngBytes},
	}, BatchTypes)

	assert.Equal(t, []string{"https://res.example.com/a.jpg", "https://res.example.com/b.png"}, res.URLs)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "evil.exe", res.Failures[0].Name)
	assert.True(t, res.Partial())
}
