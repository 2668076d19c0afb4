package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"polyindex/internal/models"
	"polyindex/internal/polygon"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), Config{
		Workers: 2,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l := polygon.NewLayout()
	if _, err := l.Add(polygon.Placement{Source: "square", Xs: []float64{0, 1, 1, 0}, Ys: []float64{0, 0, 1, 1}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.storage.SaveSet("square", 4, l); err != nil {
		t.Fatalf("SaveSet failed: %v", err)
	}

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func postQuery(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/query", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestQuery_UnitSquare(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postQuery(t, ts, `{"set": "square", "xs": [0.6, 0.5], "ys": [0.6, -0.5]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID == "" || got.NumPoints != 2 || len(got.Kinds) != 4 {
		t.Errorf("unexpected response header fields %+v", got)
	}

	res := got.Results
	if res.DistanceEdge[0] != 0.4 || res.DistanceEdge[1] != 0.5 {
		t.Errorf("edge distances = %v, want [0.4 0.5]", res.DistanceEdge)
	}
	if res.ClosestVertex[0] != 2 || res.ClosestVertex[1] != 0 {
		t.Errorf("closest vertices = %v, want [2 0]", res.ClosestVertex)
	}
	if !res.Contains[0] || res.Contains[1] {
		t.Errorf("contains = %v, want [true false]", res.Contains)
	}
}

func TestQuery_ExhaustiveMatchesTree(t *testing.T) {
	_, ts := newTestServer(t)

	body := `{"set": "square", "kinds": ["edge", "closest"], "xs": [0.2, 3, -1], "ys": [0.7, 0.5, -1]}`
	var tree, exhaustive queryResponse
	if err := json.NewDecoder(postQuery(t, ts, body).Body).Decode(&tree); err != nil {
		t.Fatal(err)
	}
	body = strings.Replace(body, `"set"`, `"exhaustive": true, "set"`, 1)
	if err := json.NewDecoder(postQuery(t, ts, body).Body).Decode(&exhaustive); err != nil {
		t.Fatal(err)
	}

	if !exhaustive.Exhaustive {
		t.Error("exhaustive flag not echoed")
	}
	if tree.Results.Contains != nil || tree.Results.DistanceVertex != nil {
		t.Error("unrequested kinds should be omitted")
	}
	for i := range tree.Results.DistanceEdge {
		if tree.Results.DistanceEdge[i] != exhaustive.Results.DistanceEdge[i] ||
			tree.Results.ClosestVertex[i] != exhaustive.Results.ClosestVertex[i] {
			t.Errorf("point %d: tree %v/%d, exhaustive %v/%d", i,
				tree.Results.DistanceEdge[i], tree.Results.ClosestVertex[i],
				exhaustive.Results.DistanceEdge[i], exhaustive.Results.ClosestVertex[i])
		}
	}
}

func TestQuery_Errors(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing set", `{"xs": [], "ys": []}`, http.StatusBadRequest},
		{"unknown set", `{"set": "nope", "xs": [1], "ys": [1]}`, http.StatusNotFound},
		{"length mismatch", `{"set": "square", "xs": [1, 2], "ys": [1]}`, http.StatusBadRequest},
		{"unknown kind", `{"set": "square", "kinds": ["area"], "xs": [1], "ys": [1]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postQuery(t, ts, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var e map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e["error"] == "" {
				t.Errorf("expected an error body, got %v (%v)", e, err)
			}
		})
	}
}

func TestQuery_RecordsHistory(t *testing.T) {
	s, ts := newTestServer(t)

	postQuery(t, ts, `{"set": "square", "xs": [0.5], "ys": [0.5]}`)

	runs, err := s.storage.ListQueries("square", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].NumPoints != 1 {
		t.Fatalf("history = %+v", runs)
	}

	resp, err := http.Get(ts.URL + "/api/queries?set=square")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var listed []models.QueryRun
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].ID != runs[0].ID {
		t.Errorf("listed runs = %+v", listed)
	}
}

func TestSets(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sets")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sets []models.PolygonSet
	if err := json.NewDecoder(resp.Body).Decode(&sets); err != nil {
		t.Fatal(err)
	}
	if len(sets) != 1 || sets[0].Name != "square" || sets[0].NumVertices != 4 {
		t.Errorf("sets = %+v", sets)
	}
}

func TestSet_ReportsCache(t *testing.T) {
	_, ts := newTestServer(t)

	getSet := func() setResponse {
		t.Helper()
		resp, err := http.Get(ts.URL + "/api/sets/square")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var got setResponse
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		return got
	}

	if got := getSet(); got.Cached || len(got.Polygons) != 1 {
		t.Errorf("before query: %+v", got)
	}
	postQuery(t, ts, `{"set": "square", "xs": [0.5], "ys": [0.5]}`)
	got := getSet()
	if !got.Cached || got.TreeDepth != 1 || len(got.RecentQueries) != 1 {
		t.Errorf("after query: cached=%v depth=%d recent=%d", got.Cached, got.TreeDepth, len(got.RecentQueries))
	}

	resp, err := http.Get(ts.URL + "/api/sets/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing set status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteSet_EvictsTree(t *testing.T) {
	s, ts := newTestServer(t)
	postQuery(t, ts, `{"set": "square", "xs": [0.5], "ys": [0.5]}`)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sets/square", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if _, ok := s.trees.cached("square"); ok {
		t.Error("tree should be evicted")
	}
	if resp := postQuery(t, ts, `{"set": "square", "xs": [0.5], "ys": [0.5]}`); resp.StatusCode != http.StatusNotFound {
		t.Errorf("query after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)
	postQuery(t, ts, `{"set": "square", "xs": [0.5], "ys": [0.5]}`)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("polyindex_queries_total")) {
		t.Error("metrics output missing polyindex_queries_total")
	}
}

func TestTreeCache_SharesBuild(t *testing.T) {
	s, _ := newTestServer(t)

	a, err := s.trees.get("square")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.trees.get("square")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second get should return the cached index")
	}
}

func TestTreeCache_EvictDuringBuild(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.trees

	gen := c.generation("square")
	ix, err := c.build("square")
	if err != nil {
		t.Fatal(err)
	}
	// the set is deleted while the build above was running
	if err := s.storage.DeleteSet("square"); err != nil {
		t.Fatal(err)
	}
	c.evict("square")

	if c.put("square", gen, ix) {
		t.Error("stale build should not be stored")
	}
	if _, ok := c.cached("square"); ok {
		t.Error("deleted set is still cached")
	}
	if _, err := c.get("square"); err == nil {
		t.Error("get should fail for a deleted set")
	}

	if !c.put("square", c.generation("square"), ix) {
		t.Error("build under the current generation should be stored")
	}
}

func TestIdleTimeout(t *testing.T) {
	s, _ := newTestServer(t)
	s.mu.Lock()
	s.lastActivity = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	if s.idleFor() < time.Hour {
		t.Errorf("idleFor = %v, want at least 1h", s.idleFor())
	}
	s.recordActivity()
	if s.idleFor() > time.Minute {
		t.Errorf("idleFor after activity = %v", s.idleFor())
	}

	s.Shutdown()
	s.Shutdown()
	select {
	case <-s.shutdownChan:
	default:
		t.Error("shutdown channel should be closed")
	}
}
