package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/newsvault/pkg/domain"
)

const rssContent = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
	<channel>
		<title>Markets</title>
		<link>https://example.com</link>
		<description>Market news</description>
		<item>
			<title>Stocks rally &amp; bonds slip</title>
			<link>https://example.com/markets/rally?utm_source=rss</link>
			<description><![CDATA[<p>Stocks <b>rallied</b> on Monday.</p>]]></description>
			<guid>rally</guid>
			<pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
		</item>
		<item>
			<title>Oil falls</title>
			<link>/markets/oil</link>
			<content:encoded><![CDATA[<p>Oil prices fell.</p>]]></content:encoded>
			<guid>oil</guid>
		</item>
		<item>
			<title>No link entry</title>
			<description>nothing to see</description>
		</item>
	</channel>
</rss>`

const atomContent = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Atom Markets</title>
	<link href="https://example.org/"/>
	<updated>2006-01-02T15:04:05Z</updated>
	<entry>
		<title>Atom Entry 1</title>
		<link href="https://example.org/entry1"/>
		<id>entry1</id>
		<updated>2006-01-02T15:04:05Z</updated>
		<summary>Entry 1 summary</summary>
	</entry>
</feed>`

func TestParser_Parse(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA, gotAccept = r.Header.Get("User-Agent"), r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssContent))
	}))
	defer srv.Close()

	fetchTime := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := NewParser(5*time.Second, 1024*1024)
	p.now = func() time.Time { return fetchTime }

	items, err := p.Parse(context.Background(), domain.FeedConfig{Name: "finance", URL: srv.URL + "/feed.xml", Category: "markets"}, "test-agent")
	require.NoError(t, err)
	require.Len(t, items, 2, "entry without link skipped")

	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "application/rss+xml, application/xml, text/xml, */*", gotAccept)

	assert.Equal(t, "https://example.com/markets/rally?utm_source=rss", items[0].URL, "collection url is kept as is")
	assert.Equal(t, "Stocks rally & bonds slip", items[0].Title)
	assert.Equal(t, "Stocks rallied on Monday.", items[0].FeedSummary)
	assert.Equal(t, "finance", items[0].FeedSource)
	assert.Equal(t, "markets", items[0].FeedCategory)
	assert.Equal(t, 2006, items[0].PublishedAt.Year())

	assert.Equal(t, srv.URL+"/markets/oil", items[1].URL, "relative link resolved against feed url")
	assert.Equal(t, "Oil prices fell.", items[1].FeedSummary, "content used when description is empty")
	assert.Equal(t, fetchTime, items[1].PublishedAt, "fetch time used when feed has no date")
}

func TestParser_ParseAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomContent))
	}))
	defer srv.Close()

	p := NewParser(5*time.Second, 1024*1024)
	items, err := p.Parse(context.Background(), domain.FeedConfig{Name: "atom", URL: srv.URL}, "test-agent")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.org/entry1", items[0].URL)
	assert.Equal(t, "Entry 1 summary", items[0].FeedSummary)
	assert.Equal(t, 2006, items[0].PublishedAt.Year(), "updated time used when published is missing")
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		maxSize int64
		wantErr string
	}{
		{
			name:    "bot block",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			wantErr: "blocked by bot protection",
		},
		{
			name:    "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			wantErr: "blocked by bot protection",
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			wantErr: "unexpected status code: 500",
		},
		{
			name:    "malformed xml",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<rss><channel><item>")) },
			wantErr: "parse feed",
		},
		{
			name:    "not a feed",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not xml content")) },
			wantErr: "parse feed",
		},
		{
			name:    "too large",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(rssContent)) },
			maxSize: 100,
			wantErr: "feed exceeds 100 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			maxSize := tt.maxSize
			if maxSize == 0 {
				maxSize = 1024 * 1024
			}
			p := NewParser(5*time.Second, maxSize)
			items, err := p.Parse(context.Background(), domain.FeedConfig{Name: "bad", URL: srv.URL}, "ua")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, items)
		})
	}
}

func TestParser_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(rssContent))
	}))
	defer srv.Close()

	p := NewParser(20*time.Millisecond, 1024*1024)
	_, err := p.Parse(context.Background(), domain.FeedConfig{Name: "slow", URL: srv.URL}, "ua")
	require.Error(t, err)
}

func TestCollector_Collect(t *testing.T) {
	var mu sync.Mutex
	agents := map[string]int{}
	record := func(r *http.Request) {
		mu.Lock()
		agents[r.Header.Get("User-Agent")]++
		mu.Unlock()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record(r)
		switch r.URL.Path {
		case "/good.xml":
			_, _ = w.Write([]byte(rssContent))
		case "/atom.xml":
			_, _ = w.Write([]byte(atomContent))
		case "/blocked.xml":
			w.WriteHeader(http.StatusForbidden)
		case "/broken.xml":
			_, _ = w.Write([]byte("<rss><channel><item><title>broken"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	feeds := []domain.FeedConfig{
		{Name: "good", URL: srv.URL + "/good.xml", Enabled: true},
		{Name: "blocked", URL: srv.URL + "/blocked.xml", Enabled: true},
		{Name: "atom", URL: srv.URL + "/atom.xml", Enabled: true},
		{Name: "broken", URL: srv.URL + "/broken.xml", Enabled: true},
		{Name: "missing", URL: srv.URL + "/missing.xml", Enabled: true},
		{Name: "unreachable", URL: "http://127.0.0.1:1/feed.xml", Enabled: true},
		{Name: "disabled", URL: srv.URL + "/good.xml", Enabled: false},
	}

	c := NewCollector(CollectorParams{
		Timeout:       2 * time.Second,
		MaxConcurrent: 3,
		UserAgents:    []string{"ua-1", "ua-2", "ua-3", "ua-4"},
	})
	articles, errs := c.Collect(context.Background(), feeds)

	require.Len(t, articles, 3)
	assert.Equal(t, "good", articles[0].FeedSource)
	assert.Equal(t, "good", articles[1].FeedSource)
	assert.Equal(t, "atom", articles[2].FeedSource)

	require.Len(t, errs, 4)
	names := make([]string, 0, len(errs))
	for _, e := range errs {
		names = append(names, e.FeedName)
		assert.NotEmpty(t, e.Err)
		assert.NotEmpty(t, e.FeedURL)
	}
	assert.Equal(t, []string{"blocked", "broken", "missing", "unreachable"}, names)
	assert.Contains(t, errs[0].Err, "blocked by bot protection")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, agents, 1, "one user agent for the whole run")
	for ua := range agents {
		assert.Contains(t, []string{"ua-1", "ua-2", "ua-3", "ua-4"}, ua)
	}
}

func TestCollector_UserAgentPerCollect(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
		_, _ = w.Write([]byte(rssContent))
	}))
	defer srv.Close()

	feeds := []domain.FeedConfig{
		{Name: "f1", URL: srv.URL + "/1.xml", Enabled: true},
		{Name: "f2", URL: srv.URL + "/2.xml", Enabled: true},
		{Name: "f3", URL: srv.URL + "/3.xml", Enabled: true},
	}

	t.Run("picked on every call", func(t *testing.T) {
		c := NewCollector(CollectorParams{Timeout: 2 * time.Second, UserAgents: []string{"ua-1", "ua-2"}})
		picks := 0
		c.pickAgent = func(pool []string) string {
			picks++
			return pool[(picks-1)%len(pool)]
		}

		for _, want := range []string{"ua-1", "ua-2", "ua-1"} {
			mu.Lock()
			agents = nil
			mu.Unlock()
			_, errs := c.Collect(context.Background(), feeds)
			require.Empty(t, errs)
			mu.Lock()
			assert.Equal(t, []string{want, want, want}, agents, "all feeds of one run share the agent")
			mu.Unlock()
		}
		assert.Equal(t, 3, picks)
	})

	t.Run("random pool", func(t *testing.T) {
		pool := []string{"ua-1", "ua-2", "ua-3", "ua-4"}
		c := NewCollector(CollectorParams{Timeout: 2 * time.Second, UserAgents: pool})
		seen := map[string]bool{}
		for range 30 {
			mu.Lock()
			agents = nil
			mu.Unlock()
			_, errs := c.Collect(context.Background(), feeds[:1])
			require.Empty(t, errs)
			mu.Lock()
			require.Len(t, agents, 1)
			seen[agents[0]] = true
			mu.Unlock()
		}
		assert.Greater(t, len(seen), 1, "separate runs draw from the pool independently")
		for ua := range seen {
			assert.Contains(t, pool, ua)
		}
	})
}

func TestCollector_Empty(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(rssContent))
	}))
	defer srv.Close()

	c := NewCollector(CollectorParams{})
	articles, errs := c.Collect(context.Background(), nil)
	assert.Empty(t, articles)
	assert.Empty(t, errs)

	_, errs = c.Collect(context.Background(), []domain.FeedConfig{{Name: "f", URL: srv.URL, Enabled: true}})
	require.Empty(t, errs)
	assert.Equal(t, defaultUserAgent, gotUA, "default agent with an empty pool")
}
