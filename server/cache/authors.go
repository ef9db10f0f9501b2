package cache

import (
	"sync/atomic"
	"time"
)

// Authors caches the per-shout author attribution: who wrote each shout and
// under which caption.
type Authors struct {
	zine ZineReader

	// shout slug -> author -> caption
	snap atomic.Pointer[map[string]map[string]string]
	stop chan struct{}
}

// NewAuthors creates the author attribution cache.
func NewAuthors(zine ZineReader) *Authors {
	ac := &Authors{
		zine: zine,
		stop: make(chan struct{}),
	}
	empty := make(map[string]map[string]string)
	ac.snap.Store(&empty)
	return ac
}

// Start launches the refresh loop.
func (ac *Authors) Start(period time.Duration) {
	go refreshLoop("authors", period, ac.stop, ac.rebuild)
}

// Stop terminates the refresh loop.
func (ac *Authors) Stop() {
	close(ac.stop)
}

// GetAuthors returns the authors of the shout.
func (ac *Authors) GetAuthors(shout string) []string {
	byShout := *ac.snap.Load()
	captions := byShout[shout]
	if len(captions) == 0 {
		return nil
	}
	out := make([]string, 0, len(captions))
	for author := range captions {
		out = append(out, author)
	}
	return out
}

// GetCaption returns the author's byline for the shout.
func (ac *Authors) GetCaption(shout, author string) (string, bool) {
	byShout := *ac.snap.Load()
	caption, ok := byShout[shout][author]
	return caption, ok
}

func (ac *Authors) rebuild() error {
	links, err := ac.zine.ShoutAuthorLinks()
	if err != nil {
		return err
	}

	byShout := make(map[string]map[string]string)
	for _, link := range links {
		captions := byShout[link.Shout]
		if captions == nil {
			captions = make(map[string]string)
			byShout[link.Shout] = captions
		}
		captions[link.Author] = link.Caption
	}

	ac.snap.Store(&byShout)
	return nil
}
