package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// epochSentinel is the `since` value for a full-state pull when no
// watermark exists.
var epochSentinel = time.Unix(0, 0).UTC()

// PullChanges fetches all remote changes since the given watermark. A zero
// since requests the server's complete state using the epoch sentinel.
func (c *Client) PullChanges(ctx context.Context, since time.Time) (*ChangesResponse, error) {
	if since.IsZero() {
		since = epochSentinel
	}

	path := "/watchlist/sync?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var changes ChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&changes); err != nil {
		return nil, fmt.Errorf("api: decoding sync response: %w", err)
	}

	return &changes, nil
}

// PushOperations uploads the ordered operation batch together with the last
// known watermark. The server returns one verdict per distinct fund code.
func (c *Client) PushOperations(ctx context.Context, ops []Operation, lastSync time.Time) (*SyncResponse, error) {
	req := SyncRequest{Operations: ops}
	if !lastSync.IsZero() {
		req.LastSyncTime = &Timestamp{lastSync}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("api: encoding sync request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, "/watchlist/sync", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("api: decoding sync results: %w", err)
	}

	return &result, nil
}

// CreateGroup creates a watchlist group on the server. There is no
// optimistic local creation for groups — the caller waits for this
// round-trip before using the group.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Group, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("api: encoding group request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, "/watchlist/groups", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wrapped GroupResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("api: decoding group response: %w", err)
	}

	return &wrapped.Data, nil
}

// UpdateGroup modifies an existing group on the server.
func (c *Client) UpdateGroup(ctx context.Context, groupID string, req UpdateGroupRequest) (*Group, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("api: encoding group update: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPut, "/watchlist/groups/"+url.PathEscape(groupID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wrapped GroupResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("api: decoding group response: %w", err)
	}

	return &wrapped.Data, nil
}

// DeleteGroup removes a group on the server. Items in the group fall back
// to ungrouped; the change arrives through the next pull.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	resp, err := c.Do(ctx, http.MethodDelete, "/watchlist/groups/"+url.PathEscape(groupID), nil)
	if err != nil {
		return err
	}

	return resp.Body.Close()
}
