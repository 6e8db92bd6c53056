package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
)

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAPICreateAndPublish(t *testing.T) {
	ts := newTestServer(t)

	resp, created := postJSON(t, ts.server.URL+"/api/sessions", map[string]any{
		"kind":            "contest",
		"title":           "Warmup",
		"hostId":          "host-1",
		"durationMinutes": 30,
		"items": []map[string]any{{
			"prompt":    "Echo",
			"type":      "code",
			"testCases": []map[string]any{{"input": "1", "expectedOutput": "1"}},
		}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, created)
	}
	if created["status"] != "draft" || len(created["code"].(string)) != 6 {
		t.Fatalf("unexpected created session %v", created)
	}
	id := created["id"].(string)

	resp, body := postJSON(t, ts.server.URL+"/api/sessions/"+id+"/publish", map[string]any{"hostId": "someone-else"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-host publish, got %d: %v", resp.StatusCode, body)
	}
	resp, body = postJSON(t, ts.server.URL+"/api/sessions/"+id+"/publish", map[string]any{"hostId": "host-1"})
	if resp.StatusCode != http.StatusOK || body["status"] != "waiting" {
		t.Fatalf("expected waiting session, got %d: %v", resp.StatusCode, body)
	}
	resp, body = postJSON(t, ts.server.URL+"/api/sessions/"+id+"/publish", map[string]any{"hostId": "host-1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second publish, got %d: %v", resp.StatusCode, body)
	}

	lb, err := http.Get(ts.server.URL + "/api/sessions/" + id + "/leaderboard")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	lb.Body.Close()
	if lb.StatusCode != http.StatusOK {
		t.Fatalf("expected leaderboard 200, got %d", lb.StatusCode)
	}
}

func TestAPIValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, body := postJSON(t, ts.server.URL+"/api/sessions", map[string]any{
		"kind":            "poker",
		"title":           "",
		"hostId":          "host-1",
		"durationMinutes": 0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", resp.StatusCode, body)
	}

	resp, body = postJSON(t, ts.server.URL+"/api/sessions", map[string]any{
		"kind":            "quiz",
		"title":           "Q",
		"hostId":          "host-1",
		"durationMinutes": 5,
		"items":           []map[string]any{{"prompt": "2+2?", "type": "mcq", "correctAnswer": "4"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for mcq without options, got %d: %v", resp.StatusCode, body)
	}

	resp, _ = postJSON(t, ts.server.URL+"/api/sessions/missing/publish", map[string]any{"hostId": "host-1"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
