package share

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) WriteText(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

type fakeSharer struct {
	got Payload
	err error
}

func (s *fakeSharer) Share(_ context.Context, p Payload) error {
	s.got = p
	return s.err
}

func TestShareOrCopy(t *testing.T) {
	t.Parallel()

	p := Payload{Title: "Reports", Text: "Hello", URL: "https://reports.example.org/a"}

	t.Run("share succeeds", func(t *testing.T) {
		t.Parallel()
		s, c := &fakeSharer{}, &fakeClipboard{}
		require.NoError(t, ShareOrCopy(context.Background(), s, c, p))
		assert.Equal(t, p, s.got)
		assert.Empty(t, c.text)
	})

	t.Run("share fails, link copied", func(t *testing.T) {
		t.Parallel()
		s, c := &fakeSharer{err: errors.New("dismissed")}, &fakeClipboard{}
		require.NoError(t, ShareOrCopy(context.Background(), s, c, p))
		assert.Equal(t, p.URL, c.text)
	})

	t.Run("no sharer", func(t *testing.T) {
		t.Parallel()
		c := &fakeClipboard{}
		require.NoError(t, ShareOrCopy(context.Background(), nil, c, Payload{Title: "Reports", URL: "u"}))
		assert.Equal(t, "u", c.text)
	})

	t.Run("title used as text", func(t *testing.T) {
		t.Parallel()
		s := &fakeSharer{}
		require.NoError(t, ShareOrCopy(context.Background(), s, nil, Payload{Title: "Reports", URL: "u"}))
		assert.Equal(t, "Reports", s.got.Text)
	})

	t.Run("nothing available", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, ShareOrCopy(context.Background(), nil, nil, p), ErrNoTarget)
	})

	t.Run("clipboard fails", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("denied")
		assert.ErrorIs(t, ShareOrCopy(context.Background(), nil, &fakeClipboard{err: boom}, p), boom)
	})
}

func TestWhatsAppURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sep  string
		want string
	}{
		{name: "default newline", sep: "", want: "https://wa.me/?text=Hello%20world%0Ahttps%3A%2F%2Fr.org%2Fa"},
		{name: "escaped newline", sep: `\n\n`, want: "https://wa.me/?text=Hello%20world%0A%0Ahttps%3A%2F%2Fr.org%2Fa"},
		{name: "crlf", sep: "\r\n", want: "https://wa.me/?text=Hello%20world%0Ahttps%3A%2F%2Fr.org%2Fa"},
		{name: "custom", sep: " - ", want: "https://wa.me/?text=Hello%20world%20-%20https%3A%2F%2Fr.org%2Fa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, WhatsAppURL("Hello world", "https://r.org/a", tt.sep))
		})
	}

	assert.Equal(t, "https://wa.me/?text=https%3A%2F%2Fr.org%2Fa", WhatsAppURL("", "https://r.org/a", "\n"))
}

func TestSocialURLs(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"https://www.facebook.com/sharer/sharer.php?hashtag=%23IFRC&u=https%3A%2F%2Fr.org%2Fa",
		FacebookURL("https://r.org/a", "IFRC"))
	assert.Equal(t,
		"https://www.facebook.com/sharer/sharer.php?u=https%3A%2F%2Fr.org%2Fa",
		FacebookURL("https://r.org/a", ""))
	assert.Equal(t,
		"https://linkedin.com/shareArticle?mini=true&summary=Hi+there&title=Hi+there&url=https%3A%2F%2Fr.org%2Fa",
		LinkedInURL("https://r.org/a", "Hi there"))

	links := LinksFor("Hi", "https://r.org/a", "#IFRC", "")
	assert.Equal(t, WhatsAppURL("Hi", "https://r.org/a", ""), links.WhatsApp)
	assert.Contains(t, links.Facebook, "hashtag=%23IFRC")
}

func TestSystemClipboardUsesWriter(t *testing.T) {
	// Not parallel: swaps the package-level writer.
	orig := clipboardWrite
	t.Cleanup(func() { clipboardWrite = orig })

	var got string
	clipboardWrite = func(s string) error {
		got = s
		return nil
	}

	err := Copy(SystemClipboard{}, "quote")
	if err != nil {
		// Headless systems without xclip/xsel report Unsupported.
		t.Skipf("clipboard unavailable: %v", err)
	}
	assert.Equal(t, "quote", got)
	assert.ErrorIs(t, Copy(nil, "x"), ErrNoTarget)
}
