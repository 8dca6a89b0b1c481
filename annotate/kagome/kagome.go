// Package kagome adapts the kagome morphological analyzer as an
// in-process annotator for Japanese source texts.
package kagome

import (
	"context"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome-dict/uni"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/beritholmen/konkord/annotate"
)

// Dict selects the kagome dictionary.
type Dict string

const (
	// DictIPA is the IPA dictionary (default).
	DictIPA Dict = "ipa"
	// DictUni is the UniDic dictionary (finer-grained POS inventory).
	DictUni Dict = "uni"
)

// Annotator annotates Japanese text with kagome.
type Annotator struct {
	tk *tokenizer.Tokenizer
}

// New creates a kagome-backed annotator using the given dictionary.
func New(dict Dict) (*Annotator, error) {
	d := ipa.Dict()
	if dict == DictUni {
		d = uni.Dict()
	}

	tk, err := tokenizer.New(d, tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Annotator{tk: tk}, nil
}

// Language returns "ja".
func (a *Annotator) Language() string { return "ja" }

// Annotate splits text into sentences on Japanese terminal punctuation
// and runs morphological analysis on each. Kagome runs in-process, so the
// only failure mode is context cancellation.
func (a *Annotator) Annotate(ctx context.Context, text string) ([]annotate.Sentence, error) {
	var out []annotate.Sentence
	for _, sent := range splitSentences(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s := annotate.Sentence{Text: sent}
		for _, kt := range a.tk.Tokenize(sent) {
			lemma, _ := kt.BaseForm()
			if lemma == "" || lemma == "*" {
				lemma = kt.Surface
			}
			pos := kt.POS()
			tag := ""
			if len(pos) > 0 {
				tag = pos[0]
			}
			s.Tokens = append(s.Tokens, annotate.Token{
				Surface: kt.Surface,
				Lemma:   lemma,
				POS:     tag,
			})
		}
		out = append(out, s)
	}
	return out, nil
}

// splitSentences cuts on 。！？ (and their ASCII equivalents at line ends),
// keeping the terminator with its sentence.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for _, r := range strings.TrimSpace(text) {
		if r == '\n' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
			continue
		}
		b.WriteRune(r)
		switch r {
		case '。', '！', '？', '!', '?':
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}
