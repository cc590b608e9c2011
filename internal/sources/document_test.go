package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDocumentClientFetch(t *testing.T) {
	payload := []byte("%PDF-1.5 fake body")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	root := t.TempDir()
	c := NewDocumentClient(root, time.Second)
	path, sum, err := c.Fetch(context.Background(), "cs/0112017", srv.URL+"/pdf/cs/0112017")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "papers", "cs_0112017.pdf"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	want := sha256.Sum256(payload)
	require.Equal(t, hex.EncodeToString(want[:]), sum)
}

func TestDocumentClientFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewDocumentClient(t.TempDir(), time.Second)
	_, _, err := c.Fetch(context.Background(), "p1", srv.URL)
	require.ErrorContains(t, err, "document source error 403")

	_, _, err = c.Fetch(context.Background(), "p1", "  ")
	require.ErrorContains(t, err, "no document url")
}
