package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnnotate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/annotate", r.URL.Path)

		var req annotateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "nb", req.Language)
		require.Equal(t, "Huset er gammelt.", req.Text)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sentences":[{"text":"Huset er gammelt.","tokens":[
			{"text":"Huset","lemma":"hus","upos":"NOUN"},
			{"text":"er","lemma":"være","upos":"AUX"},
			{"text":"gammelt","lemma":"gammel","upos":"ADJ"},
			{"text":".","lemma":".","upos":"PUNCT"}
		]}]}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "nb")
	require.NoError(t, err)
	require.Equal(t, "nb", c.Language())

	sentences, err := c.Annotate(context.Background(), "Huset er gammelt.")
	require.NoError(t, err)
	require.Len(t, sentences, 1)
	require.Len(t, sentences[0].Tokens, 4)
	require.Equal(t, "hus", sentences[0].Tokens[0].Lemma)
	require.Equal(t, "NOUN", sentences[0].Tokens[0].POS)
}

func TestAnnotateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "pipeline not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "nb")
	require.NoError(t, err)

	_, err = c.Annotate(context.Background(), "tekst")
	require.Error(t, err)
	require.Contains(t, err.Error(), "annotation server")
}

func TestAnnotateUnreachable(t *testing.T) {
	c, err := New("http://127.0.0.1:1", "nb")
	require.NoError(t, err)

	_, err = c.Annotate(context.Background(), "tekst")
	require.Error(t, err)
}

func TestNewInvalidLanguage(t *testing.T) {
	_, err := New("http://localhost", "not a lang tag !!")
	require.Error(t, err)
}

func TestRateLimitRespectsContext(t *testing.T) {
	c, err := New("http://127.0.0.1:1", "nb", WithRateLimit(0.0001, 1))
	require.NoError(t, err)

	// First call consumes the burst; a cancelled context must abort the
	// second wait instead of blocking for hours.
	_, _ = c.Annotate(context.Background(), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Annotate(ctx, "b")
	require.Error(t, err)
}
