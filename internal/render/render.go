// Package render turns provider message content into terminal text.
package render

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"

	"github.com/nhle/tempmail/internal/model"
)

// DateLayout is the format used for message timestamps.
const DateLayout = "Jan 2, 2006 03:04 PM"

const blockedImage = "[image blocked]"

// Options controls body rendering.
type Options struct {
	// ShowImages renders images as a placeholder naming their source
	// instead of blocking them.
	ShowImages bool
}

// FormatDate formats a unix timestamp in local time. Zero or negative
// timestamps render as an empty string.
func FormatDate(ts int64) string {
	return FormatDateIn(ts, time.Local)
}

// FormatDateIn formats a unix timestamp in loc.
func FormatDateIn(ts int64, loc *time.Location) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).In(loc).Format(DateLayout)
}

// ParseSender splits a From value into display name and address. A value
// that does not parse is returned as the address, trimmed.
func ParseSender(from string) (name, address string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return "", strings.TrimSpace(from)
	}
	return addr.Name, addr.Address
}

// SenderLabel is the short form of a sender for list rows.
func SenderLabel(from string) string {
	name, address := ParseSender(from)
	if name != "" {
		return name
	}
	return address
}

// IsHTML reports whether a body should be treated as HTML. The declared
// content type wins; without one the body is sniffed for markup.
func IsHTML(contentType, body string) bool {
	if strings.TrimSpace(contentType) != "" {
		var h message.Header
		h.Set("Content-Type", contentType)
		if t, _, err := h.ContentType(); err == nil && t == "text/html" {
			return true
		}
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "</") || strings.Contains(lower, "<br")
}

// Body renders a message body as plain text.
func Body(d *model.MessageDetail, opts Options) (string, error) {
	if d == nil {
		return "", nil
	}
	if IsHTML(d.ContentType, d.Body) {
		return HTMLToText(d.Body, opts)
	}
	return normalizeLines(strings.ReplaceAll(d.Body, "\r\n", "\n"), false), nil
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"div": true, "dl": true, "dt": true, "dd": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "tr": true, "ul": true,
}

// HTMLToText strips markup from src. Scripts and styles are dropped,
// images are blocked unless opts.ShowImages is set, and link targets are
// kept next to their text.
func HTMLToText(src string, opts Options) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", errors.Wrap(err, "parsing html body")
	}

	doc.Find("script, style, head, noscript, template").Remove()

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		label := blockedImage
		if opts.ShowImages {
			src, _ := s.Attr("src")
			alt := strings.TrimSpace(s.AttrOr("alt", ""))
			switch {
			case alt != "" && src != "":
				label = "[image: " + alt + " " + src + "]"
			case src != "":
				label = "[image: " + src + "]"
			default:
				label = "[image]"
			}
		}
		s.ReplaceWithNodes(textNode(label))
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		text := strings.TrimSpace(s.Text())
		if href == "" || strings.HasPrefix(href, "#") || href == text {
			return
		}
		s.AppendNodes(textNode(" <" + href + ">"))
	})

	var w textWriter
	for _, n := range doc.Nodes {
		w.walk(n)
	}
	return normalizeLines(w.b.String(), true), nil
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

type textWriter struct {
	b   strings.Builder
	pre int
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if w.pre > 0 {
			w.b.WriteString(n.Data)
			return
		}
		w.b.WriteString(collapseSpace(n.Data))
		return
	case html.ElementNode:
		if n.Data == "br" {
			w.b.WriteByte('\n')
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		w.newline()
		if n.Data == "li" {
			w.b.WriteString("- ")
		}
		if n.Data == "pre" {
			w.pre++
			defer func() { w.pre-- }()
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.newline()
	}
	if n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th") {
		w.b.WriteByte(' ')
	}
}

// newline ends the current line unless it is already ended.
func (w *textWriter) newline() {
	if s := w.b.String(); s == "" || s[len(s)-1] != '\n' {
		w.b.WriteByte('\n')
	}
}

// collapseSpace replaces each run of whitespace with one space.
func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\u00a0':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}

// normalizeLines trims trailing space from each line and folds runs of
// blank lines into one. trimLeft also drops leading spaces.
func normalizeLines(s string, trimLeft bool) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, l := range lines {
		l = strings.TrimRight(l, " \t\r")
		if strings.TrimSpace(l) == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		if trimLeft {
			l = strings.TrimLeft(l, " ")
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
