// Package search provides the OpenSearch client backing the chunk index.
//
// The index holds one document per semantic block; form filling, export
// and the chatbot all read through GetUserChunks.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ezcommon/apply-portal/internal/model"
)

// ErrUnavailable means the search backend rejected or failed the request.
var ErrUnavailable = errors.New("search backend unavailable")

// defaultSearchSize caps how many index documents a single query returns.
const defaultSearchSize = 1000

// Options configures a Client.
type Options struct {
	BaseURL  string
	Index    string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to an OpenSearch cluster over its REST API.
type Client struct {
	baseURL  string
	index    string
	username string
	password string
	http     *http.Client
}

// New creates a Client. It does not touch the network; call EnsureIndex
// during startup to verify connectivity and create the index mapping.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:  opts.BaseURL,
		index:    opts.Index,
		username: opts.Username,
		password: opts.Password,
		http:     &http.Client{Timeout: timeout},
	}
}

// Ping checks cluster reachability.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/", nil)
	return err
}

// indexMapping is the chunk index schema. Chunks are stored flat, one
// index document per block, so term filters on the metadata fields stay
// cheap.
var indexMapping = map[string]any{
	"settings": map[string]any{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]any{
		"properties": map[string]any{
			"block_id":               map[string]any{"type": "keyword"},
			"user_id":                map[string]any{"type": "keyword"},
			"section":                map[string]any{"type": "keyword"},
			"source_file":            map[string]any{"type": "keyword"},
			"file_type":              map[string]any{"type": "keyword"},
			"category":               map[string]any{"type": "keyword"},
			"chunk_type":             map[string]any{"type": "keyword"},
			"block_type":             map[string]any{"type": "keyword"},
			"priority":               map[string]any{"type": "keyword"},
			"contains_personal_data": map[string]any{"type": "boolean"},
			"summary":                map[string]any{"type": "text"},
			"content":                map[string]any{"type": "text"},
			"extraction_date":        map[string]any{"type": "date"},
		},
	},
}

// EnsureIndex creates the chunk index if it does not exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodHead, "/"+c.index, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: index check returned %d", ErrUnavailable, resp.StatusCode)
	}

	if _, err := c.do(ctx, http.MethodPut, "/"+c.index, indexMapping); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// IndexChunk stores one chunk under its block ID. An existing document
// with the same ID is overwritten.
func (c *Client) IndexChunk(ctx context.Context, chunk *model.DocumentChunk) error {
	p := fmt.Sprintf("/%s/_doc/%s", c.index, url.PathEscape(chunk.BlockID))
	if _, err := c.do(ctx, http.MethodPut, p, chunk); err != nil {
		return fmt.Errorf("index chunk %s: %w", chunk.BlockID, err)
	}
	return nil
}

// IndexChunks stores a batch of chunks via the bulk API.
func (c *Client) IndexChunks(ctx context.Context, chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, chunk := range chunks {
		action := map[string]any{
			"index": map[string]any{"_index": c.index, "_id": chunk.BlockID},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(chunk); err != nil {
			return fmt.Errorf("encode bulk chunk: %w", err)
		}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/_bulk", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: bulk returned %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	var result struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if result.Errors {
		return fmt.Errorf("%w: bulk indexing reported item errors", ErrUnavailable)
	}
	return nil
}

// userQuery builds the term filter for a user, optionally narrowed to a
// section.
func userQuery(userID, section string) map[string]any {
	must := []any{
		map[string]any{"term": map[string]any{"user_id": userID}},
	}
	if section != "" {
		must = append(must, map[string]any{"term": map[string]any{"section": section}})
	}
	return map[string]any{"bool": map[string]any{"must": must}}
}

// GetUserChunks returns every chunk stored for a user, optionally
// filtered by section.
func (c *Client) GetUserChunks(ctx context.Context, userID, section string) ([]*model.DocumentChunk, error) {
	body := map[string]any{
		"query": userQuery(userID, section),
		"size":  defaultSearchSize,
	}

	data, err := c.do(ctx, http.MethodPost, "/"+c.index+"/_search", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string              `json:"_id"`
				Source model.DocumentChunk `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	chunks := make([]*model.DocumentChunk, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		chunk := hit.Source
		if chunk.BlockID == "" {
			chunk.BlockID = hit.ID
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, nil
}

// DeleteUserFile removes every chunk extracted from one source file.
// Returns the number of chunks deleted.
func (c *Client) DeleteUserFile(ctx context.Context, userID, sourceFile string) (int, error) {
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"term": map[string]any{"user_id": userID}},
					map[string]any{"term": map[string]any{"source_file": sourceFile}},
				},
			},
		},
	}

	data, err := c.do(ctx, http.MethodPost, "/"+c.index+"/_delete_by_query", query)
	if err != nil {
		return 0, err
	}

	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return result.Deleted, nil
}

// DeleteUserChunks removes every chunk belonging to a user, optionally
// limited to a section. Returns the number of chunks deleted.
func (c *Client) DeleteUserChunks(ctx context.Context, userID, section string) (int, error) {
	query := map[string]any{"query": userQuery(userID, section)}

	data, err := c.do(ctx, http.MethodPost, "/"+c.index+"/_delete_by_query", query)
	if err != nil {
		return 0, err
	}

	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return result.Deleted, nil
}

// Count returns the number of chunks stored for a user.
func (c *Client) Count(ctx context.Context, userID string) (int64, error) {
	body := map[string]any{"query": userQuery(userID, "")}

	data, err := c.do(ctx, http.MethodPost, "/"+c.index+"/_count", body)
	if err != nil {
		return 0, err
	}

	var result struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return result.Count, nil
}

func (c *Client) newRequest(ctx context.Context, method, p string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, p string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, p, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ErrUnavailable, method, p, resp.StatusCode, truncate(data, 512))
	}
	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
