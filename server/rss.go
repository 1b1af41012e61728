package server

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/newsvault/pkg/domain"
)

type rssFeed struct {
	XMLName xml.Name    `xml:"rss"`
	Version string      `xml:"version,attr"`
	Atom    string      `xml:"xmlns:atom,attr"`
	Channel *rssChannel `xml:"channel"`
}

type rssChannel struct {
	XMLName       xml.Name   `xml:"channel"`
	Title         string     `xml:"title"`
	Link          string     `xml:"link"`
	Description   string     `xml:"description"`
	AtomLink      *atomLink  `xml:"http://www.w3.org/2005/Atom link"`
	LastBuildDate string     `xml:"lastBuildDate"`
	Items         []*rssItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        string   `xml:"guid"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
}

// rssHandler serves articles published by the last run as RSS 2.0.
// Supports both /rss/{category} and /rss?category=... patterns
func (s *Server) rssHandler(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	if category == "" {
		category = r.URL.Query().Get("category")
	}

	var published []domain.PublishedArticle
	var built time.Time
	if res, _, ok := s.runner.LastResult(); ok {
		published, built = res.Published, res.StartedAt.Add(res.Elapsed)
	}

	baseURL := "http://" + r.Host
	if r.TLS != nil {
		baseURL = "https://" + r.Host
	}
	data, err := generateRSS(baseURL, category, published, built)
	if err != nil {
		lgr.Printf("[ERROR] failed to generate RSS feed: %v", err)
		http.Error(w, "Failed to generate RSS feed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write([]byte(data)); err != nil {
		lgr.Printf("[ERROR] failed to write RSS response: %v", err)
	}
}

// generateRSS makes a feed of successfully published articles, optionally limited to a summary category
func generateRSS(baseURL, category string, published []domain.PublishedArticle, built time.Time) (string, error) {
	title, selfLink := "newsvault digest", baseURL+"/rss"
	if category != "" {
		title = "newsvault digest - " + category
		selfLink = baseURL + "/rss/" + category
	}

	items := make([]*rssItem, 0, len(published))
	for _, p := range published {
		if p.PublicationStatus != domain.PublishSuccess {
			continue
		}
		if category != "" && !strings.EqualFold(p.Summary.Category, category) {
			continue
		}
		items = append(items, convertToRSSItem(p))
	}

	if built.IsZero() {
		built = time.Now()
	}
	feed := &rssFeed{
		Version: "2.0",
		Atom:    "http://www.w3.org/2005/Atom",
		Channel: &rssChannel{
			Title:         title,
			Link:          baseURL + "/",
			Description:   "Summaries of financial news published by the last run",
			AtomLink:      &atomLink{Href: selfLink, Rel: "self", Type: "application/rss+xml"},
			LastBuildDate: built.Format(time.RFC1123Z),
			Items:         items,
		},
	}

	output, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal RSS: %w", err)
	}
	return xml.Header + string(output), nil
}

func convertToRSSItem(p domain.PublishedArticle) *rssItem {
	title := p.Summary.Headline
	if title == "" {
		title = p.Title
	}

	desc := p.Summary.Summary
	if len(p.Summary.KeyPoints) > 0 {
		desc += "\n\n- " + strings.Join(p.Summary.KeyPoints, "\n- ")
	}
	if len(p.Summary.Tickers) > 0 {
		desc += "\n\nTickers: " + strings.Join(p.Summary.Tickers, ", ")
	}

	var categories []string
	if p.Summary.Category != "" {
		categories = append(categories, p.Summary.Category)
	}

	return &rssItem{
		Title:       title,
		Link:        p.URL,
		GUID:        p.URL,
		Description: desc,
		PubDate:     p.PublishedAt.Format(time.RFC1123Z),
		Categories:  categories,
	}
}
