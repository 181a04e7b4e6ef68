package pages

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/renderinc/report-highlights/internal/highlight"
)

var ErrInvalidSize = errors.New("must provide a positive size")

// Cache is a fixed-capacity LRU of fetched pages in front of a Source. Page
// bodies are kept zstd-compressed and entries expire after a TTL.
type Cache struct {
	src  Source
	size int
	ttl  time.Duration
	now  func() time.Time

	lock      sync.Mutex
	evictList *list.List
	items     map[string]*list.Element

	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
}

type cacheEntry struct {
	key       string
	url       string
	body      []byte
	hash      string
	fetchedAt time.Time
}

// NewCache caches up to size pages of src for ttl. A zero ttl never expires.
func NewCache(src Source, size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	// A nil writer/reader allows EncodeAll/DecodeAll without streams.
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}

	return &Cache{
		src:       src,
		size:      size,
		ttl:       ttl,
		now:       time.Now,
		evictList: list.New(),
		items:     make(map[string]*list.Element),
		zstdEnc:   enc,
		zstdDec:   dec,
	}, nil
}

func cacheKey(rawURL string) string {
	if key, err := highlight.URLKey(rawURL); err == nil {
		return key
	}
	return rawURL
}

// Fetch returns the cached page for rawURL or fetches and caches it.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (Page, error) {
	key := cacheKey(rawURL)
	if p, ok := c.get(key); ok {
		return p, nil
	}

	p, err := c.src.Fetch(ctx, rawURL)
	if err != nil {
		return Page{}, err
	}
	c.add(key, p)
	return p, nil
}

func (c *Cache) get(key string) (Page, bool) {
	c.lock.Lock()
	ent, ok := c.items[key]
	if !ok {
		c.lock.Unlock()
		return Page{}, false
	}
	e := ent.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(e.fetchedAt) > c.ttl {
		c.removeElement(ent)
		c.lock.Unlock()
		return Page{}, false
	}
	c.evictList.MoveToFront(ent)
	entry := *e
	c.lock.Unlock()

	body, err := c.zstdDec.DecodeAll(entry.body, nil)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to decode cached page; removing")
		c.Invalidate(entry.url)
		return Page{}, false
	}
	return Page{URL: entry.url, HTML: body, Hash: entry.hash, FetchedAt: entry.fetchedAt}, true
}

func (c *Cache) add(key string, p Page) {
	entry := &cacheEntry{
		key:       key,
		url:       p.URL,
		body:      c.zstdEnc.EncodeAll(p.HTML, nil),
		hash:      p.Hash,
		fetchedAt: p.FetchedAt,
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value = entry
		return
	}

	c.items[key] = c.evictList.PushFront(entry)
	if c.evictList.Len() > c.size {
		if oldest := c.evictList.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Invalidate drops the cached page for rawURL.
func (c *Cache) Invalidate(rawURL string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if ent, ok := c.items[cacheKey(rawURL)]; ok {
		c.removeElement(ent)
		return true
	}
	return false
}

// Len returns the number of cached pages.
func (c *Cache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.evictList.Len()
}

func (c *Cache) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	if kv, ok := e.Value.(*cacheEntry); ok {
		delete(c.items, kv.key)
	}
}
