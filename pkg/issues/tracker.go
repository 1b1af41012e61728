// Package issues implements the publication tracker on top of GitHub issues.
// A record is an issue, record fields are "name:value" labels, archived records are closed issues.
package issues

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"github.com/google/go-github/v68/github"

	"github.com/umputun/newsvault/pkg/domain"
)

// maxLabelLen is the GitHub limit for label names
const maxLabelLen = 50

var sourceRe = regexp.MustCompile(`(?m)^Source: (\S+)\s*$`)

// errPermanent marks errors which are not retried
var errPermanent = errors.New("permanent github error")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string        { return e.err.Error() }
func (e *permanentError) Unwrap() error        { return e.err }
func (e *permanentError) Is(target error) bool { return target == errPermanent }

// Tracker publishes records as issues of a single repository
type Tracker struct {
	client *github.Client
	owner  string
	repo   string
	now    func() time.Time
}

// Params defines GitHub connection
type Params struct {
	Owner   string
	Repo    string
	Token   string
	BaseURL string // API base URL, for GitHub Enterprise or tests
	Timeout time.Duration
}

// New makes a GitHub issues tracker
func New(p Params) (*Tracker, error) {
	if p.Owner == "" || p.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}

	client := github.NewClient(&http.Client{Timeout: p.Timeout})
	if p.Token != "" {
		client = client.WithAuthToken(p.Token)
	}
	if p.BaseURL != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(p.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse base url %q: %w", p.BaseURL, err)
		}
		client.BaseURL = baseURL
	}
	return &Tracker{client: client, owner: p.Owner, repo: p.Repo, now: time.Now}, nil
}

// CreateRecord opens an issue for the record, the source URL is kept in the body. Returns issue number.
func (t *Tracker) CreateRecord(ctx context.Context, rec domain.Record) (string, error) {
	body := strings.TrimSpace(rec.Body) + "\n\nSource: " + rec.SourceURL + "\n"
	req := &github.IssueRequest{Title: github.Ptr(rec.Title), Body: github.Ptr(body)}
	if len(rec.Labels) > 0 {
		labels := make([]string, 0, len(rec.Labels))
		for _, l := range rec.Labels {
			labels = append(labels, truncateLabel(l))
		}
		req.Labels = &labels
	}

	issue, _, err := t.client.Issues.Create(ctx, t.owner, t.repo, req)
	if err != nil {
		return "", fmt.Errorf("create issue: %w", err)
	}
	return strconv.Itoa(issue.GetNumber()), nil
}

// ListRecentURLs returns source URLs of issues created since the given time, open and closed
func (t *Tracker) ListRecentURLs(ctx context.Context, label string, since time.Time) ([]string, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Since:       since, // filters by update time, creation time is checked below
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if label != "" {
		opts.Labels = []string{label}
	}

	urls := []string{}
	seen := map[string]bool{}
	for {
		var issues []*github.Issue
		var resp *github.Response
		err := repeater.NewBackoff(3, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second)).Do(ctx, func() error {
			var e error
			issues, resp, e = t.client.Issues.ListByRepo(ctx, t.owner, t.repo, opts)
			if e != nil && !retryable(e) {
				return &permanentError{err: e}
			}
			return e
		}, errPermanent)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() || issue.GetCreatedAt().Before(since) {
				continue
			}
			src := SourceURL(issue.GetBody())
			if src == "" || seen[src] {
				continue
			}
			seen[src] = true
			urls = append(urls, src)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	lgr.Printf("[DEBUG] %d recent issues in %s/%s with label %q", len(urls), t.owner, t.repo, label)
	return urls, nil
}

// SetField adds "field:value" label to the issue
func (t *Tracker) SetField(ctx context.Context, id, field, value string) error {
	number, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid issue number %q: %w", id, err)
	}
	label := truncateLabel(field + ":" + value)
	if _, _, err := t.client.Issues.AddLabelsToIssue(ctx, t.owner, t.repo, number, []string{label}); err != nil {
		return fmt.Errorf("add label %q to issue %d: %w", label, number, err)
	}
	return nil
}

// Archive closes the issue as completed
func (t *Tracker) Archive(ctx context.Context, id string) error {
	number, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid issue number %q: %w", id, err)
	}
	req := &github.IssueRequest{State: github.Ptr("closed"), StateReason: github.Ptr("completed")}
	if _, _, err := t.client.Issues.Edit(ctx, t.owner, t.repo, number, req); err != nil {
		return fmt.Errorf("close issue %d: %w", number, err)
	}
	return nil
}

// SourceURL extracts the source URL line from issue body, empty if not found
func SourceURL(body string) string {
	m := sourceRe.FindAllStringSubmatch(body, -1)
	if len(m) == 0 {
		return ""
	}
	return m[len(m)-1][1] // the line is appended last
}

// retryable reports whether the error is worth another attempt
func retryable(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return false
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return false
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode >= 500
	}
	return true
}

func truncateLabel(s string) string {
	if utf8.RuneCountInString(s) <= maxLabelLen {
		return s
	}
	return string([]rune(s)[:maxLabelLen])
}
