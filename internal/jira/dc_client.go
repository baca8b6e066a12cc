package jira

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"eng-metrics/internal/errdefs"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

const (
	searchFields = "summary,issuetype,status,resolution,assignee,created"

	fieldsTTL = 30 * time.Minute
	filterTTL = 5 * time.Minute
)

type dcClient struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]

	throttleMu  sync.Mutex
	lastRequest time.Time
}

// NewDataCenterClient creates a client for Jira Data Center / Server.
func NewDataCenterClient(cfg Config) Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &dcClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker("jira"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only outages count against the breaker; 404s and auth failures are answers.
		IsSuccessful: func(err error) bool {
			return err == nil || !errdefs.IsUpstreamUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Jira circuit breaker state change")
		},
	})
}

func (c *dcClient) throttle(ctx context.Context, isMetadata bool) error {
	c.throttleMu.Lock()
	defer c.throttleMu.Unlock()

	// Metadata requests are allowed to burst
	if isMetadata || c.cfg.RequestDelay <= 0 {
		c.lastRequest = time.Now()
		return nil
	}

	if wait := c.cfg.RequestDelay - time.Since(c.lastRequest); wait > 0 {
		log.Debug().Dur("wait", wait).Msg("Throttling Jira request")
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.lastRequest = time.Now()
	return nil
}

func (c *dcClient) authenticateRequest(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		return
	}

	cookies := []struct {
		name  string
		value string
	}{
		{"atlassian.xsrf.token", c.cfg.XsrfToken},
		{"JSESSIONID", c.cfg.SessionID},
		{"seraph.rememberme.cookie", c.cfg.RememberMe},
		{"GCILB", c.cfg.GCILB},
		{"GCLB", c.cfg.GCLB},
	}

	var pairs []string
	for _, cookie := range cookies {
		if cookie.value != "" {
			// Built by hand: net/http drops cookie values containing double quotes.
			pairs = append(pairs, cookie.name+"="+cookie.value)
		}
	}
	if len(pairs) > 0 {
		req.Header.Set("Cookie", strings.Join(pairs, "; "))
	}
}

// getJSON performs an authenticated GET through the circuit breaker and
// decodes the response into target.
func (c *dcClient) getJSON(ctx context.Context, path string, params url.Values, isMetadata bool, what string, target any) error {
	if err := c.throttle(ctx, isMetadata); err != nil {
		return err
	}

	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	log.Debug().Str("url", endpoint).Msg("Jira request")

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, endpoint, what)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("jira %s: %v: %w", what, err, errdefs.ErrUpstreamUnavailable)
		}
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode Jira %s response: %w", what, err)
	}
	return nil
}

func (c *dcClient) do(ctx context.Context, endpoint, what string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	c.authenticateRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("jira %s: %v: %w", what, err, errdefs.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("jira %s: %w", what, errdefs.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("Jira authentication failed (%d). Please check your token or session cookies", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			return nil, fmt.Errorf("Jira rate limit exceeded, retry after %s seconds: %w", retryAfter, errdefs.ErrUpstreamUnavailable)
		}
		return nil, fmt.Errorf("Jira rate limit exceeded: %w", errdefs.ErrUpstreamUnavailable)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("Jira API returned status %d for %s: %w", resp.StatusCode, what, errdefs.ErrUpstreamUnavailable)
	default:
		return nil, fmt.Errorf("Jira API returned status %d for %s", resp.StatusCode, what)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jira %s: reading body: %v: %w", what, err, errdefs.ErrUpstreamUnavailable)
	}
	return body, nil
}

func (c *dcClient) SearchIssues(ctx context.Context, jql string, startAt, maxResults int, expandChangelog bool) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("jql", jql)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(maxResults))

	// Custom field IDs vary per instance, so every navigable field is requested.
	params.Set("fields", searchFields+",*navigable")
	if expandChangelog {
		params.Set("expand", "changelog")
	}

	log.Info().Int("startAt", startAt).Bool("changelog", expandChangelog).Msg("Requesting issues from Jira")
	var result SearchResponse
	if err := c.getJSON(ctx, "/rest/api/2/search", params, false, "search", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *dcClient) FieldID(ctx context.Context, friendlyName string) (string, error) {
	if strings.HasPrefix(friendlyName, "customfield_") {
		return friendlyName, nil
	}

	session := SessionFrom(ctx)
	var fields []FieldDTO
	if val, ok := session.Get("fields"); ok {
		fields = val.([]FieldDTO)
	} else {
		if err := c.getJSON(ctx, "/rest/api/2/field", nil, true, "field list", &fields); err != nil {
			return "", err
		}
		session.Set("fields", fields, fieldsTTL)
	}

	for _, f := range fields {
		if strings.EqualFold(f.Name, friendlyName) {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("field %q: %w", friendlyName, errdefs.ErrNotFound)
}

func (c *dcClient) GetFilter(ctx context.Context, id string) (*Filter, error) {
	cacheKey := "filter:" + id
	session := SessionFrom(ctx)
	if val, ok := session.Get(cacheKey); ok {
		return val.(*Filter), nil
	}

	var dto filterDTO
	if err := c.getJSON(ctx, "/rest/api/2/filter/"+url.PathEscape(id), nil, true, "filter "+id, &dto); err != nil {
		return nil, err
	}

	filter := &Filter{ID: dto.ID, Name: dto.Name, JQL: dto.JQL}
	session.Set(cacheKey, filter, filterTTL)
	return filter, nil
}

func (c *dcClient) GetSprints(ctx context.Context, boardID int) ([]Sprint, error) {
	var sprints []Sprint
	startAt := 0

	for {
		params := url.Values{}
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", "50")
		params.Set("state", "active,closed")

		var page sprintListDTO
		what := fmt.Sprintf("sprints of board %d", boardID)
		if err := c.getJSON(ctx, fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID), params, true, what, &page); err != nil {
			return nil, err
		}
		for _, s := range page.Values {
			sprints = append(sprints, mapSprint(s))
		}

		if page.IsLast || len(page.Values) == 0 {
			break
		}
		startAt += len(page.Values)
	}

	log.Debug().Int("board", boardID).Int("count", len(sprints)).Msg("Fetched sprints")
	return sprints, nil
}

func (c *dcClient) GetSprintReport(ctx context.Context, boardID, sprintID int) (*SprintReport, error) {
	params := url.Values{}
	params.Set("rapidViewId", strconv.Itoa(boardID))
	params.Set("sprintId", strconv.Itoa(sprintID))

	var dto sprintReportDTO
	what := fmt.Sprintf("sprint report %d/%d", boardID, sprintID)
	if err := c.getJSON(ctx, "/rest/greenhopper/1.0/rapid/charts/sprintreport", params, true, what, &dto); err != nil {
		return nil, err
	}

	report := mapSprintReport(boardID, dto)
	if report.Sprint.ID == 0 {
		report.Sprint.ID = sprintID
	}
	return &report, nil
}
