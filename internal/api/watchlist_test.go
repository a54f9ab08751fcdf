package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPullChanges_SinceParameter(t *testing.T) {
	t.Parallel()

	var gotSince string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		json.NewEncoder(w).Encode(ChangesResponse{
			SyncTime: Timestamp{time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	since := time.Date(2026, 2, 28, 9, 30, 0, 0, time.UTC)

	resp, err := c.PullChanges(context.Background(), since)
	if err != nil {
		t.Fatalf("PullChanges: %v", err)
	}

	if gotSince != "2026-02-28T09:30:00Z" {
		t.Errorf("since = %q", gotSince)
	}

	if resp.SyncTime.IsZero() {
		t.Error("expected sync_time")
	}
}

func TestPullChanges_ZeroSinceUsesEpoch(t *testing.T) {
	t.Parallel()

	var gotSince string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		json.NewEncoder(w).Encode(ChangesResponse{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	if _, err := c.PullChanges(context.Background(), time.Time{}); err != nil {
		t.Fatalf("PullChanges: %v", err)
	}

	if gotSince != "1970-01-01T00:00:00Z" {
		t.Errorf("since = %q, want epoch sentinel", gotSince)
	}
}

func TestPushOperations_RoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}

		if len(req.Operations) != 2 {
			t.Errorf("got %d operations, want 2", len(req.Operations))
		}

		if req.Operations[0].OperationType != OpAdd {
			t.Errorf("op 0 type = %q", req.Operations[0].OperationType)
		}

		if req.LastSyncTime == nil {
			t.Error("expected last_sync_time")
		}

		json.NewEncoder(w).Encode(SyncResponse{Results: []OperationResult{
			{Operation: OpAdd, FundCode: "000001", Success: true},
			{Operation: OpRemove, FundCode: "110022", Success: false, Error: "not found"},
		}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	name := "Test Fund"
	ops := []Operation{
		{ID: "op-1", OperationType: OpAdd, FundCode: "000001", FundName: &name, ClientTimestamp: Timestamp{time.Now()}},
		{ID: "op-2", OperationType: OpRemove, FundCode: "110022", ClientTimestamp: Timestamp{time.Now()}},
	}

	resp, err := c.PushOperations(context.Background(), ops, time.Now())
	if err != nil {
		t.Fatalf("PushOperations: %v", err)
	}

	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}

	if !resp.Results[0].Success || resp.Results[1].Success {
		t.Errorf("unexpected verdicts: %+v", resp.Results)
	}
}

func TestTimestamp_LenientParsing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
	}{
		{`"2026-03-01T12:00:00Z"`, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{`"2026-03-01T12:00:00+08:00"`, time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)},
		{`"2026-03-01T12:00:00.123456"`, time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)},
		{`"2026-03-01T12:00:00"`, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{`null`, time.Time{}},
		{`""`, time.Time{}},
	}

	for _, tc := range cases {
		var ts Timestamp
		if err := ts.UnmarshalJSON([]byte(tc.in)); err != nil {
			t.Errorf("UnmarshalJSON(%s): %v", tc.in, err)
			continue
		}

		if !ts.Time.Equal(tc.want) {
			t.Errorf("UnmarshalJSON(%s) = %v, want %v", tc.in, ts.Time, tc.want)
		}
	}

	var ts Timestamp
	if err := ts.UnmarshalJSON([]byte(`"yesterday"`)); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestCreateGroup(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/watchlist/groups" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		json.NewEncoder(w).Encode(GroupResponse{Data: Group{ID: "g-1", Name: "Tech"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	g, err := c.CreateGroup(context.Background(), CreateGroupRequest{Name: "Tech", Icon: "folder", Color: "#007AFF"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if g.ID != "g-1" {
		t.Errorf("group id = %q", g.ID)
	}
}
