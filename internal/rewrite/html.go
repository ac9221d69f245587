// Package rewrite makes upstream HTML documents embeddable in an iframe.
package rewrite

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// ContentType is emitted for every rewritten document, whatever the upstream charset.
const ContentType = "text/html; charset=utf-8"

// frameBustingEquiv lists the http-equiv values whose <meta> tags are removed.
var frameBustingEquiv = []string{
	"x-frame-options",
	"content-security-policy",
}

// Result describes one rewritten document.
type Result struct {
	HTML      []byte
	HeadFound bool // base tag went after <head> rather than at the start
	Stripped  int  // frame-busting <meta> tags removed
}

// IsHTML reports whether an upstream Content-Type should be rewritten.
// The check is a case-sensitive substring match.
func IsHTML(contentType string) bool {
	return strings.Contains(contentType, "text/html")
}

// BaseTag returns the <base> element pointing at target.
func BaseTag(target string) string {
	return `<base href="` + html.EscapeString(target) + `">`
}

// Document inserts a <base href="target"> right after the first <head> start
// tag, or at the very start when the document has none, and drops every
// <meta http-equiv> tag listed in frameBustingEquiv, including those inside
// <noscript>. All other bytes, a trailing unfinished tag included, are copied
// through unchanged.
func Document(doc []byte, target string) (Result, error) {
	base := []byte(BaseTag(target))

	var res Result
	out, err := rewriteTokens(doc, base, &res)
	if err != nil {
		return Result{}, err
	}

	if !res.HeadFound {
		res.HTML = append(base, out...)
		return res, nil
	}
	res.HTML = out
	return res, nil
}

// rewriteTokens copies doc token by token. A nil base only strips meta tags,
// which is how <noscript> contents are handled.
func rewriteTokens(doc, base []byte, res *Result) ([]byte, error) {
	out := bytes.NewBuffer(make([]byte, 0, len(doc)+len(base)))
	z := html.NewTokenizer(bytes.NewReader(doc))

	inNoscript := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenize html: %w", err)
			}
			// An unfinished tag at EOF is left in Raw.
			out.Write(z.Raw())
			return out.Bytes(), nil
		}

		// TagName and TagAttr lower-case the tokenizer buffer in place.
		raw := slices.Clone(z.Raw())

		// The tokenizer hands back <noscript> contents as one raw text token.
		if tt == html.TextToken && inNoscript {
			inner, err := rewriteTokens(raw, nil, res)
			if err != nil {
				return nil, err
			}
			out.Write(inner)
			continue
		}
		inNoscript = false

		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			name, hasAttr := z.TagName()
			switch string(name) {
			case "head":
				out.Write(raw)
				if base != nil && !res.HeadFound {
					out.Write(base)
					res.HeadFound = true
				}
				continue
			case "meta":
				if hasAttr && isFrameBusting(z) {
					res.Stripped++
					continue
				}
			case "noscript":
				inNoscript = tt == html.StartTagToken
			}
		}
		out.Write(raw)
	}
}

func isFrameBusting(z *html.Tokenizer) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "http-equiv" {
			v := strings.TrimSpace(string(val))
			for _, equiv := range frameBustingEquiv {
				if strings.EqualFold(v, equiv) {
					return true
				}
			}
		}
		if !more {
			return false
		}
	}
}
