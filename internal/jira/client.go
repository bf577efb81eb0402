// Package jira reads project versions and resolved bug reports from a Jira
// REST API.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/panbanda/defectmine/internal/cache"
	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/pkg/analyzer/defect"
	"github.com/panbanda/defectmine/pkg/models"
)

const (
	// DefaultBaseURL is the Apache Software Foundation tracker.
	DefaultBaseURL = "https://issues.apache.org/jira"

	// PageSize is the maxResults requested per search page.
	PageSize = 1000

	dateLayout = "2006-01-02"
)

var _ defect.Tracker = (*Client)(nil)

// Client talks to one Jira instance. Requests are rate limited and, when a
// cache is configured, responses are stored per URL.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache
	logger  logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps requests per second. Zero or less disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithCache stores responses in ch.
func WithCache(ch *cache.Cache) Option {
	return func(c *Client) { c.cache = ch }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the tracker at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		cache:   cache.Disabled(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira: %s: HTTP %d: %s", e.URL, e.Status, e.Body)
}

type version struct {
	Name        string `json:"name"`
	ReleaseDate string `json:"releaseDate"`
}

// Releases returns the project's dated versions sorted by date with ids
// 1..M. Versions without a release date are ignored.
func (c *Client) Releases(ctx context.Context, project string) ([]*models.Release, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/project/%s/versions", c.baseURL, url.PathEscape(project))

	var versions []version
	if err := c.getJSON(ctx, endpoint, &versions); err != nil {
		return nil, fmt.Errorf("versions of %s: %w", project, err)
	}

	releases := make([]*models.Release, 0, len(versions))
	for _, v := range versions {
		if v.ReleaseDate == "" || v.Name == "" {
			continue
		}
		date, err := parseDate(v.ReleaseDate)
		if err != nil {
			c.logger.WithFields(logrus.Fields{"project": project, "version": v.Name}).
				Warnf("ignoring version with bad release date: %v", err)
			continue
		}
		releases = append(releases, &models.Release{Name: v.Name, Date: date})
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Date.Before(releases[j].Date)
	})
	for i, r := range releases {
		r.ID = i + 1
	}
	return releases, nil
}

// JQL returns the search query for a project's fixed bugs.
func JQL(project string) string {
	return fmt.Sprintf(`project = "%s" AND issueType = "Bug" AND (status = "closed" OR status = "resolved") AND resolution = "fixed"`, project)
}

type searchPage struct {
	StartAt    int `json:"startAt"`
	MaxResults int `json:"maxResults"`
	Total      int `json:"total"`
	Issues     []struct {
		Key    string `json:"key"`
		Fields struct {
			Created        string    `json:"created"`
			ResolutionDate string    `json:"resolutiondate"`
			Versions       []version `json:"versions"`
		} `json:"fields"`
	} `json:"issues"`
}

// Issues returns every fixed bug of the project, following search pages
// until the reported total is reached.
func (c *Client) Issues(ctx context.Context, project string) ([]models.Issue, error) {
	log := c.logger.WithField("project", project)
	var issues []models.Issue

	for startAt := 0; ; {
		var page searchPage
		if err := c.getJSON(ctx, c.searchURL(project, startAt), &page); err != nil {
			return nil, fmt.Errorf("search %s at %d: %w", project, startAt, err)
		}

		for _, raw := range page.Issues {
			created, err := parseDate(raw.Fields.Created)
			if err != nil {
				log.WithField("issue", raw.Key).Debugf("skipping issue: created: %v", err)
				continue
			}
			resolved, err := parseDate(raw.Fields.ResolutionDate)
			if err != nil {
				log.WithField("issue", raw.Key).Debugf("skipping issue: resolutiondate: %v", err)
				continue
			}
			issue := models.Issue{Key: raw.Key, Created: created, Resolved: resolved}
			for _, v := range raw.Fields.Versions {
				issue.Versions = append(issue.Versions, v.Name)
			}
			issues = append(issues, issue)
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	log.Debugf("fetched %d issues", len(issues))
	return issues, nil
}

func (c *Client) searchURL(project string, startAt int) string {
	q := url.Values{}
	q.Set("jql", JQL(project))
	q.Set("fields", "key,versions,created,resolutiondate")
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(PageSize))
	return c.baseURL + "/rest/api/2/search?" + q.Encode()
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	data, err := c.cache.Remember(endpoint, func() ([]byte, error) {
		return c.fetch(ctx, endpoint)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	c.logger.WithField("url", endpoint).Debug("jira request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{URL: endpoint, Status: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// parseDate reads the calendar day from the first ten characters of a Jira
// date or timestamp.
func parseDate(s string) (time.Time, error) {
	if len(s) < len(dateLayout) {
		return time.Time{}, fmt.Errorf("date %q too short", s)
	}
	return time.Parse(dateLayout, s[:len(dateLayout)])
}
