// Package share sends highlighted text to the clipboard or to a share target.
package share

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"
)

// ErrNoTarget is returned by ShareOrCopy when neither capability is present.
var ErrNoTarget = errors.New("no share target")

// Clipboard writes text to a clipboard.
type Clipboard interface {
	WriteText(text string) error
}

// Sharer hands a payload to a share sheet.
type Sharer interface {
	Share(ctx context.Context, p Payload) error
}

// Payload is the content offered to a share target.
type Payload struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

var clipboardWrite = clipboard.WriteAll

// SystemClipboard is the clipboard of the host system.
type SystemClipboard struct{}

// WriteText implements Clipboard.
func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return errors.New("clipboard unsupported on this system")
	}
	return clipboardWrite(text)
}

// ShareOrCopy offers p to the sharer. If there is no sharer or it fails, the
// page URL is copied to the clipboard instead. Text falls back to the title.
func ShareOrCopy(ctx context.Context, s Sharer, c Clipboard, p Payload) error {
	if p.Text == "" {
		p.Text = p.Title
	}

	if s != nil {
		err := s.Share(ctx, p)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug().Err(err).Msg("share failed, copying link")
	}

	if c == nil {
		return ErrNoTarget
	}
	return c.WriteText(p.URL)
}

// Copy writes text to c.
func Copy(c Clipboard, text string) error {
	if c == nil {
		return ErrNoTarget
	}
	return c.WriteText(text)
}

// NormalizeSeparator turns literal "\n" escapes and CRLF into newlines.
func NormalizeSeparator(sep string) string {
	sep = strings.ReplaceAll(sep, `\n`, "\n")
	return strings.ReplaceAll(sep, "\r\n", "\n")
}

// WhatsAppURL builds a wa.me link carrying text and the page URL joined by
// sep. An empty separator means a newline.
func WhatsAppURL(text, pageURL, sep string) string {
	if sep == "" {
		sep = "\n"
	}
	msg := strings.TrimSpace(text + NormalizeSeparator(sep) + pageURL)
	return "https://wa.me/?text=" + strings.ReplaceAll(url.QueryEscape(msg), "+", "%20")
}

// FacebookURL builds a Facebook sharer link.
func FacebookURL(pageURL, hashtag string) string {
	q := url.Values{}
	q.Set("u", pageURL)
	if hashtag != "" {
		if !strings.HasPrefix(hashtag, "#") {
			hashtag = "#" + hashtag
		}
		q.Set("hashtag", hashtag)
	}
	return "https://www.facebook.com/sharer/sharer.php?" + q.Encode()
}

// LinkedInURL builds a LinkedIn share link with text as title and summary.
func LinkedInURL(pageURL, text string) string {
	q := url.Values{}
	q.Set("url", pageURL)
	q.Set("mini", "true")
	if text != "" {
		q.Set("title", text)
		q.Set("summary", text)
	}
	return "https://linkedin.com/shareArticle?" + q.Encode()
}

// Links groups the share links for one piece of text.
type Links struct {
	WhatsApp string `json:"whatsapp"`
	Facebook string `json:"facebook"`
	LinkedIn string `json:"linkedin"`
}

// LinksFor builds every share link for text on pageURL.
func LinksFor(text, pageURL, hashtag, sep string) Links {
	return Links{
		WhatsApp: WhatsAppURL(text, pageURL, sep),
		Facebook: FacebookURL(pageURL, hashtag),
		LinkedIn: LinkedInURL(pageURL, text),
	}
}
