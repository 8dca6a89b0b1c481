// Package remote implements an annotator client for an HTTP annotation
// server (a Stanza or UDPipe-style pipeline exposing tokenize/pos/lemma).
//
// The server is the expensive, external part of the system; requests are
// rate limited so a full-corpus ingestion does not overwhelm it.
package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/beritholmen/konkord/annotate"
)

// Option configures the Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout (default 60s; annotation of a
// long paragraph is slow).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithRateLimit bounds outgoing requests per second (default 4/s).
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// Client talks to an HTTP annotation server.
type Client struct {
	baseURL string
	lang    language.Tag
	http    *resty.Client
	limiter *rate.Limiter
}

// New creates a client for the server at baseURL annotating the given
// language. The language identifier must be a valid BCP 47 tag.
func New(baseURL, lang string, opts ...Option) (*Client, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("remote annotator: invalid language %q: %w", lang, err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		lang:    tag,
		http:    resty.New().SetTimeout(60 * time.Second),
		limiter: rate.NewLimiter(4, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Language returns the configured BCP 47 language tag.
func (c *Client) Language() string { return c.lang.String() }

// Wire types for the annotation server.
type annotateRequest struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

type annotateResponse struct {
	Sentences []struct {
		Text   string `json:"text"`
		Tokens []struct {
			Text  string `json:"text"`
			Lemma string `json:"lemma"`
			UPOS  string `json:"upos"`
		} `json:"tokens"`
	} `json:"sentences"`
}

// Annotate sends text to the server and converts the response into the
// annotator boundary shape.
func (c *Client) Annotate(ctx context.Context, text string) ([]annotate.Sentence, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp annotateResponse
	r, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(annotateRequest{Language: c.lang.String(), Text: text}).
		SetResult(&resp).
		Post(c.baseURL + "/annotate")
	if err != nil {
		return nil, err
	}
	if r.IsError() {
		return nil, fmt.Errorf("annotation server: %s; body: %s", r.Status(), abbreviate(r.String(), 500))
	}

	out := make([]annotate.Sentence, 0, len(resp.Sentences))
	for _, sent := range resp.Sentences {
		s := annotate.Sentence{Text: strings.TrimSpace(sent.Text)}
		for _, tok := range sent.Tokens {
			s.Tokens = append(s.Tokens, annotate.Token{
				Surface: tok.Text,
				Lemma:   tok.Lemma,
				POS:     tok.UPOS,
			})
		}
		out = append(out, s)
	}
	return out, nil
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
