package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Query for the ackee GraphQL API: every tracked page with its view count,
// most viewed first.
const pagesQuery = `query getDomains {
	domains {
		title
		statistics {
			pages(sorting: TOP) {
				count
				value
			}
		}
	}
}`

// AckeeFeed reads cumulative page view counts from an ackee analytics
// instance. Implements PageViewsFeed.
type AckeeFeed struct {
	url    string
	token  string
	client *http.Client
}

// NewAckeeFeed creates a feed client. Returns nil if the token is empty:
// the feed is optional and a missing token disables it.
func NewAckeeFeed(url, token string) *AckeeFeed {
	if token == "" {
		return nil
	}
	return &AckeeFeed{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// PageViews queries all pages sorted by view count and maps page URLs to
// shout slugs. Query strings are stripped; the slug is the path under the
// site domain.
func (f *AckeeFeed) PageViews() (map[string]int, error) {
	body, err := json.Marshal(map[string]string{"query": pagesQuery})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("ackee: unexpected status " + resp.Status)
	}

	var payload struct {
		Data struct {
			Domains []struct {
				Statistics struct {
					Pages []struct {
						Count int    `json:"count"`
						Value string `json:"value"`
					} `json:"pages"`
				} `json:"statistics"`
			} `json:"domains"`
		} `json:"data"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.Data.Domains) == 0 {
		return nil, errors.New("ackee: no domains in response")
	}

	counts := make(map[string]int)
	for _, page := range payload.Data.Domains[0].Statistics.Pages {
		slug := pageSlug(page.Value)
		if slug != "" {
			counts[slug] += page.Count
		}
	}
	return counts, nil
}

// pageSlug extracts the shout slug from a tracked page URL.
func pageSlug(value string) string {
	value, _, _ = strings.Cut(value, "?")
	if idx := strings.LastIndex(value, "/"); idx >= 0 {
		value = value[idx+1:]
	}
	return value
}
