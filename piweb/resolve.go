package piweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// Point describes one monitored point returned by a catalog search.
type Point struct {
	WebID string `json:"WebId"`
	Name  string `json:"Name"`
	Path  string `json:"Path,omitempty"`
}

type pointsResponse struct {
	Items []Point `json:"Items"`
}

// ResolveTags resolves a tag name pattern against a data server's point
// catalog and returns a map of matched tag name to web id. The pattern may
// be a partial or wildcard name; multiple matches are legal. Zero matches
// is ErrEmptyResult, never an empty map.
func (c *Client) ResolveTags(ctx context.Context, dataserver, pattern string) (map[string]string, error) {
	ds, err := c.DataServer(ctx, dataserver)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%sdataservers/%s/points?nameFilter=%s", c.baseURL, ds.WebID, queryEscape(pattern))
	status, body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &NotFoundError{Endpoint: url, StatusCode: status, Body: body}
	}

	var points pointsResponse
	if err := json.Unmarshal(body, &points); err != nil {
		return nil, fmt.Errorf("failed to parse point list: %w", err)
	}
	return pointsToMap(points.Items)
}

// SearchTags resolves a tag name pattern through the catalog-less search
// endpoint, with the same result shape and emptiness policy as ResolveTags.
func (c *Client) SearchTags(ctx context.Context, pattern string) (map[string]string, error) {
	url := c.baseURL + "search/query?q=name:" + queryEscape(pattern)
	status, body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &NotFoundError{Endpoint: url, StatusCode: status, Body: body}
	}

	var points pointsResponse
	if err := json.Unmarshal(body, &points); err != nil {
		return nil, fmt.Errorf("failed to parse search result: %w", err)
	}
	return pointsToMap(points.Items)
}

func pointsToMap(items []Point) (map[string]string, error) {
	if len(items) == 0 {
		return nil, ErrEmptyResult
	}
	resolved := make(map[string]string, len(items))
	for _, p := range items {
		resolved[p.Name] = p.WebID
	}
	return resolved, nil
}

// resolveSingle resolves a tag under the exactly-one-match policy used by
// single-result operations. More than one match is an AmbiguousTagError
// listing every matched name.
func (c *Client) resolveSingle(ctx context.Context, dataserver, tag string) (string, error) {
	resolved, err := c.ResolveTags(ctx, dataserver, tag)
	if err != nil {
		return "", err
	}
	if len(resolved) > 1 {
		names := make([]string, 0, len(resolved))
		for name := range resolved {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", &AmbiguousTagError{Pattern: tag, Matches: names}
	}
	for _, webID := range resolved {
		return webID, nil
	}
	return "", ErrEmptyResult
}
