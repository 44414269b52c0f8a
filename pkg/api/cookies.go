package api

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// recordingJar is a cookie jar that also remembers the attributes of every
// cookie it accepted. net/http/cookiejar only hands back name and value,
// so the path and expiry needed to persist the refresh cookie are kept here.
type recordingJar struct {
	http.CookieJar

	mu   sync.Mutex
	seen map[string]*http.Cookie
	now  func() time.Time
}

func newRecordingJar(jar http.CookieJar) *recordingJar {
	return &recordingJar{CookieJar: jar, seen: make(map[string]*http.Cookie), now: time.Now}
}

func (j *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.CookieJar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	for _, c := range cookies {
		rec := &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path, Expires: c.Expires}
		if rec.Path == "" || rec.Path[0] != '/' {
			rec.Path = defaultCookiePath(u)
		}
		key := rec.Name + ";" + rec.Path
		switch {
		case c.MaxAge < 0:
			delete(j.seen, key)
			continue
		case c.MaxAge > 0:
			rec.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if !rec.Expires.IsZero() && !rec.Expires.After(now) {
			delete(j.seen, key)
			continue
		}
		j.seen[key] = rec
	}
}

// recorded returns the live cookies with their attributes, ordered by name and path
func (j *recordingJar) recorded() []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	out := make([]*http.Cookie, 0, len(j.seen))
	for key, c := range j.seen {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			delete(j.seen, key)
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Name != out[b].Name {
			return out[a].Name < out[b].Name
		}
		return out[a].Path < out[b].Path
	})
	return out
}

// defaultCookiePath is the RFC 6265 default-path of u
func defaultCookiePath(u *url.URL) string {
	p := u.Path
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}
