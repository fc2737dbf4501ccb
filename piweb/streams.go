package piweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Sample is one row of a stream response, keyed by whatever fields the
// server returned (Timestamp, Value, Good, Questionable, ...). No schema is
// imposed beyond the server's own.
type Sample map[string]interface{}

// RecordedValue is the normalized result of a recorded-at-time fetch.
// Exact retrieval returns a differently shaped envelope on the wire, so for
// that mode only Scalar is set; every other mode carries the full value
// object, quality flags included, in Object.
type RecordedValue struct {
	Mode   RetrievalMode
	Scalar interface{}
	Object map[string]interface{}
}

type itemsResponse struct {
	Items []Sample `json:"Items"`
}

type valueResponse struct {
	Value json.RawMessage `json:"Value"`
}

// InterpolatedValues fetches the interpolated stream for one web id and
// returns it as rows. An empty item list is ErrEmptyResult.
func (c *Client) InterpolatedValues(ctx context.Context, webID string) ([]Sample, error) {
	url := fmt.Sprintf("%sstreams/%s/interpolated", c.baseURL, webID)
	status, body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &NotFoundError{Endpoint: url, StatusCode: status, Body: body}
	}

	var resp itemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse interpolated stream: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrEmptyResult
	}
	return resp.Items, nil
}

// RecordedAtTime fetches the stored sample for one web id at the given time
// expression. The time may be an absolute timestamp or a relative expression
// ("*-1h"); it is passed through uninterpreted. An absent or empty Value
// key is ErrEmptyResult.
func (c *Client) RecordedAtTime(ctx context.Context, webID, timeExpr string, mode RetrievalMode) (*RecordedValue, error) {
	url := fmt.Sprintf("%sstreams/%s/recordedattime?retrievalMode=%s&time=%s",
		c.baseURL, webID, mode, queryEscape(timeExpr))
	status, body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &NotFoundError{Endpoint: url, StatusCode: status, Body: body}
	}

	var resp valueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse recorded value: %w", err)
	}
	if len(resp.Value) == 0 || string(resp.Value) == "null" {
		return nil, ErrEmptyResult
	}

	var object map[string]interface{}
	if err := json.Unmarshal(resp.Value, &object); err != nil {
		return nil, fmt.Errorf("failed to parse recorded value object: %w", err)
	}
	if len(object) == 0 {
		return nil, ErrEmptyResult
	}

	if mode == RetrievalExact {
		// Exact mode wraps the scalar one level deeper than every other mode.
		return &RecordedValue{Mode: mode, Scalar: object["Value"]}, nil
	}
	return &RecordedValue{Mode: mode, Object: object}, nil
}

// SummaryValues fetches computed aggregates for one web id.
func (c *Client) SummaryValues(ctx context.Context, webID string, summary SummaryType) ([]Sample, error) {
	url := fmt.Sprintf("%sstreams/%s/summary?summaryType=%s", c.baseURL, webID, summary)
	status, body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &NotFoundError{Endpoint: url, StatusCode: status, Body: body}
	}

	var resp itemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrEmptyResult
	}
	return resp.Items, nil
}

// WriteValue posts a value to one web id's stream and returns the Location
// header of the created or updated record. Success is OK or No Content;
// anything else is a WriteFailedError carrying the raw response.
func (c *Client) WriteValue(ctx context.Context, webID string, value *Value, update UpdateOption, buffer BufferOption) (string, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to serialize value: %w", err)
	}

	url := fmt.Sprintf("%sstreams/%s/value?updateOption=%s&bufferOption=%s",
		c.baseURL, webID, update, buffer)
	status, body, headers, err := c.do(ctx, http.MethodPost, url, payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return "", &WriteFailedError{StatusCode: status, Body: body}
	}

	location := headers.Get("Location")
	if location == "" {
		return "", ErrNoLocation
	}
	return location, nil
}

// WriteTarget identifies the destination stream for a write: either a
// pre-resolved web id or a tag to resolve under the single-match policy.
// Setting both is rejected before any network call.
type WriteTarget struct {
	WebID string
	Tag   string
}

// GetValue resolves one tag and returns its interpolated values. Patterns
// matching more than one point fail with AmbiguousTagError; use GetValues
// for fan-out.
func (c *Client) GetValue(ctx context.Context, dataserver, tag string) ([]Sample, error) {
	webID, err := c.resolveSingle(ctx, dataserver, tag)
	if err != nil {
		return nil, err
	}
	return c.InterpolatedValues(ctx, webID)
}

// GetValues resolves a tag pattern and returns interpolated values for
// every match, keyed by matched tag name. Matches are fetched serially and
// the first failure aborts the batch.
func (c *Client) GetValues(ctx context.Context, dataserver, pattern string) (map[string][]Sample, error) {
	resolved, err := c.ResolveTags(ctx, dataserver, pattern)
	if err != nil {
		return nil, err
	}

	results := make(map[string][]Sample, len(resolved))
	for name, webID := range resolved {
		samples, err := c.InterpolatedValues(ctx, webID)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", name, err)
		}
		results[name] = samples
	}
	return results, nil
}

// GetRecordedValue resolves one tag and returns its recorded value at the
// given time expression.
func (c *Client) GetRecordedValue(ctx context.Context, dataserver, tag, timeExpr string, mode RetrievalMode) (*RecordedValue, error) {
	webID, err := c.resolveSingle(ctx, dataserver, tag)
	if err != nil {
		return nil, err
	}
	return c.RecordedAtTime(ctx, webID, timeExpr, mode)
}

// GetRecordedValues resolves a tag pattern and returns the recorded value
// for every match, keyed by matched tag name. First failure aborts.
func (c *Client) GetRecordedValues(ctx context.Context, dataserver, pattern, timeExpr string, mode RetrievalMode) (map[string]*RecordedValue, error) {
	resolved, err := c.ResolveTags(ctx, dataserver, pattern)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*RecordedValue, len(resolved))
	for name, webID := range resolved {
		rv, err := c.RecordedAtTime(ctx, webID, timeExpr, mode)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", name, err)
		}
		results[name] = rv
	}
	return results, nil
}

// GetSummaryValue resolves one tag and returns its summary aggregates.
func (c *Client) GetSummaryValue(ctx context.Context, dataserver, tag string, summary SummaryType) ([]Sample, error) {
	webID, err := c.resolveSingle(ctx, dataserver, tag)
	if err != nil {
		return nil, err
	}
	return c.SummaryValues(ctx, webID, summary)
}

// GetSummaryValues resolves a tag pattern and returns summary aggregates
// for every match, keyed by matched tag name. First failure aborts.
func (c *Client) GetSummaryValues(ctx context.Context, dataserver, pattern string, summary SummaryType) (map[string][]Sample, error) {
	resolved, err := c.ResolveTags(ctx, dataserver, pattern)
	if err != nil {
		return nil, err
	}

	results := make(map[string][]Sample, len(resolved))
	for name, webID := range resolved {
		samples, err := c.SummaryValues(ctx, webID, summary)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", name, err)
		}
		results[name] = samples
	}
	return results, nil
}

// UpdateValue writes a value to the target stream. Targets with both a web
// id and a tag are rejected before any request is made; tag targets resolve
// under the single-match policy.
func (c *Client) UpdateValue(ctx context.Context, dataserver string, value *Value, update UpdateOption, buffer BufferOption, target WriteTarget) (string, error) {
	if target.WebID != "" && target.Tag != "" {
		return "", ErrBothTargets
	}

	webID := target.WebID
	if webID == "" {
		var err error
		webID, err = c.resolveSingle(ctx, dataserver, target.Tag)
		if err != nil {
			return "", err
		}
	}
	return c.WriteValue(ctx, webID, value, update, buffer)
}
