package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const atomEntryFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is All You Need</title>
    <summary>  We propose a new simple network architecture,
      the Transformer.  </summary>
    <published>2017-06-12T17:57:34Z</published>
    <updated>2023-08-02T00:41:18Z</updated>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
  </entry>
</feed>`

const atomUnknownStub = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://export.arxiv.org/api/errors#incorrect_id_format</id>
    <title></title>
  </entry>
</feed>`

func TestMetadataClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1706.03762", r.URL.Query().Get("id_list"))
		require.Equal(t, "1", r.URL.Query().Get("max_results"))
		_, _ = w.Write([]byte(atomEntryFeed))
	}))
	defer srv.Close()

	c := NewMetadataClient(srv.URL, time.Second)
	meta, err := c.Fetch(context.Background(), "1706.03762")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "1706.03762", meta.PaperID)
	require.Equal(t, "Attention Is All You Need", meta.Title)
	require.Equal(t, "We propose a new simple network architecture, the Transformer.", meta.Abstract)
	require.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, meta.Authors)
	require.Equal(t, "http://arxiv.org/pdf/1706.03762v7", meta.DocumentURL)
	require.NotNil(t, meta.PublishedAt)
	require.Equal(t, 2017, meta.PublishedAt.Year())
}

func TestMetadataClientUnknownPaper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(atomUnknownStub))
	}))
	defer srv.Close()

	c := NewMetadataClient(srv.URL, time.Second)
	meta, err := c.Fetch(context.Background(), "0000.00000")
	require.NoError(t, err)
	require.Nil(t, meta, "unknown paper is a valid absent outcome")
}

func TestMetadataClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewMetadataClient(srv.URL, time.Second)
	_, err := c.Fetch(context.Background(), "1706.03762")
	require.Error(t, err)
}

func TestHTMLMirrorClientNotFoundIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewHTMLMirrorClient(srv.URL, time.Second)
	html, err := c.Fetch(context.Background(), "1706.03762")
	require.NoError(t, err)
	require.Empty(t, html)
}

func TestHTMLMirrorClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/1706.03762", r.URL.Path)
		_, _ = w.Write([]byte("<html><body><section id=\"S1\"></section></body></html>"))
	}))
	defer srv.Close()

	c := NewHTMLMirrorClient(srv.URL, time.Second)
	html, err := c.Fetch(context.Background(), "1706.03762")
	require.NoError(t, err)
	require.Contains(t, html, "S1")
}
