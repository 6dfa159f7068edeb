package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/homequest/internal/auth"
	"github.com/dukerupert/homequest/internal/database"
	"github.com/dukerupert/homequest/internal/engine"
	"github.com/dukerupert/homequest/internal/metrics"
	"github.com/dukerupert/homequest/internal/model"
	"github.com/dukerupert/homequest/internal/proof"
	ws "github.com/dukerupert/homequest/internal/websocket"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testServer struct {
	*httptest.Server
	hub    *ws.Hub
	appKey string
}

func setupServer(t *testing.T, appKey string) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	proofs, err := proof.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := ws.NewHub(logger)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	metrics.WatchClients(reg, hub.ClientCount)

	e := engine.New(db, proofs, logger, engine.WithNotifier(hub), engine.WithMetrics(m))
	tokens, err := auth.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	srv := New(db, e, hub, auth.NewHasher("pepper"), tokens, m, reg, Config{
		AppKey:        appKey,
		ProofMaxBytes: 4096,
		RateLimit:     1000,
		RateBurst:     1000,
	}, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, hub: hub, appKey: appKey}
}

func (ts *testServer) request(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ts.appKey != "" {
		req.Header.Set("X-App-Key", ts.appKey)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// call sends a JSON request and decodes the JSON response into out.
func (ts *testServer) call(t *testing.T, method, path, token string, in, out any) int {
	t.Helper()
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	resp := ts.request(t, method, path, token, body, contentType)
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// expectError asserts the status and error code of a failing call.
func (ts *testServer) expectError(t *testing.T, method, path, token string, in any, status int, code string) {
	t.Helper()
	var e apiError
	if got := ts.call(t, method, path, token, in, &e); got != status {
		t.Errorf("%s %s: status = %d, want %d", method, path, got, status)
	}
	if e.Error.Code != code {
		t.Errorf("%s %s: code = %q, want %q", method, path, e.Error.Code, code)
	}
}

func (ts *testServer) signUp(t *testing.T, name string) (int64, string) {
	t.Helper()
	var a model.Account
	if status := ts.call(t, "POST", "/api/accounts", "", map[string]string{"name": name, "password": "correct horse"}, &a); status != http.StatusCreated {
		t.Fatalf("register %s: status = %d", name, status)
	}
	var tok auth.Token
	if status := ts.call(t, "POST", "/api/token", "", map[string]any{"account_id": a.ID, "password": "correct horse"}, &tok); status != http.StatusOK {
		t.Fatalf("token %s: status = %d", name, status)
	}
	return a.ID, tok.AccessToken
}

// setupGroup creates a group owned by one account with a second member.
func (ts *testServer) setupGroup(t *testing.T) (groupID int64, owner, member string, memberID int64) {
	t.Helper()
	_, owner = ts.signUp(t, "Olive")
	memberID, member = ts.signUp(t, "Milo")

	var g model.Group
	if status := ts.call(t, "POST", "/api/groups", owner, map[string]string{"name": "Maple House"}, &g); status != http.StatusCreated {
		t.Fatalf("create group: status = %d", status)
	}
	var code struct {
		InviteCode string `json:"invite_code"`
	}
	if status := ts.call(t, "POST", fmt.Sprintf("/api/groups/%d/invite-code", g.ID), owner, nil, &code); status != http.StatusOK {
		t.Fatalf("invite code: status = %d", status)
	}
	if status := ts.call(t, "POST", "/api/groups/join", member, map[string]string{"invite_code": code.InviteCode}, nil); status != http.StatusCreated {
		t.Fatalf("join: status = %d", status)
	}
	return g.ID, owner, member, memberID
}

func multipartProof(t *testing.T, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "proof.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestQuestLifecycleOverHTTP(t *testing.T) {
	ts := setupServer(t, "")
	groupID, owner, member, _ := ts.setupGroup(t)

	var q model.Quest
	if status := ts.call(t, "POST", fmt.Sprintf("/api/groups/%d/quests", groupID), owner, map[string]any{"name": "Dishes", "reward_points": 30}, &q); status != http.StatusCreated {
		t.Fatalf("create quest: status = %d", status)
	}
	ts.expectError(t, "POST", fmt.Sprintf("/api/groups/%d/quests", groupID), member, map[string]any{"name": "Nope"}, http.StatusForbidden, "permission_denied")

	body, ct := multipartProof(t, pngBytes)
	resp := ts.request(t, "POST", fmt.Sprintf("/api/quests/%d/submissions", q.ID), member, body, ct)
	var sub model.Submission
	json.NewDecoder(resp.Body).Decode(&sub)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: status = %d", resp.StatusCode)
	}
	if sub.Status != model.SubmissionPending || sub.ProofRef == nil {
		t.Errorf("submission = %+v, want pending with proof", sub)
	}

	resp = ts.request(t, "GET", fmt.Sprintf("/api/submissions/%d/proof", sub.ID), member, nil, "")
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("proof: status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("proof Content-Type = %q, want image/png", got)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Errorf("proof body = %q, want png bytes", data)
	}

	ts.expectError(t, "POST", fmt.Sprintf("/api/quests/%d/submissions", q.ID), member, nil, http.StatusConflict, "duplicate_submission")
	ts.expectError(t, "POST", fmt.Sprintf("/api/submissions/%d/review", sub.ID), member, map[string]bool{"approved": true}, http.StatusForbidden, "permission_denied")
	ts.expectError(t, "POST", fmt.Sprintf("/api/submissions/%d/review", sub.ID), owner, map[string]any{}, http.StatusBadRequest, "invalid_input")

	var pending []model.SubmissionDetail
	if status := ts.call(t, "GET", fmt.Sprintf("/api/groups/%d/submissions", groupID), owner, nil, &pending); status != http.StatusOK {
		t.Fatalf("pending: status = %d", status)
	}
	if len(pending) != 1 || pending[0].QuestName != "Dishes" {
		t.Errorf("pending = %+v, want one Dishes submission", pending)
	}

	var review model.ReviewResult
	if status := ts.call(t, "POST", fmt.Sprintf("/api/submissions/%d/review", sub.ID), owner, map[string]bool{"approved": true}, &review); status != http.StatusOK {
		t.Fatalf("review: status = %d", status)
	}
	if review.Balance != 30 || review.Submission.Status != model.SubmissionApproved {
		t.Errorf("review = %+v, want approved with balance 30", review)
	}
	ts.expectError(t, "POST", fmt.Sprintf("/api/submissions/%d/review", sub.ID), owner, map[string]bool{"approved": false}, http.StatusConflict, "already_reviewed")
	ts.expectError(t, "GET", fmt.Sprintf("/api/submissions/%d/proof", sub.ID), member, nil, http.StatusNotFound, "submission_not_found")

	var groups []model.MembershipSummary
	ts.call(t, "GET", "/api/me/groups", member, nil, &groups)
	if len(groups) != 1 || groups[0].Points != 30 {
		t.Errorf("member groups = %+v, want one group with 30 points", groups)
	}

	var mine []model.SubmissionDetail
	ts.call(t, "GET", fmt.Sprintf("/api/groups/%d/submissions/mine", groupID), member, nil, &mine)
	if len(mine) != 1 {
		t.Errorf("mine = %d, want 1", len(mine))
	}
	var history []model.SubmissionDetail
	ts.call(t, "GET", fmt.Sprintf("/api/groups/%d/submissions/history", groupID), member, nil, &history)
	if len(history) != 1 {
		t.Errorf("history = %d, want 1", len(history))
	}
}

func TestShopOverHTTP(t *testing.T) {
	ts := setupServer(t, "")
	groupID, owner, member, _ := ts.setupGroup(t)

	var q model.Quest
	ts.call(t, "POST", fmt.Sprintf("/api/groups/%d/quests", groupID), owner, map[string]any{"name": "Dishes", "reward_points": 30}, &q)
	var sub model.Submission
	ts.call(t, "POST", fmt.Sprintf("/api/quests/%d/submissions", q.ID), member, nil, &sub)
	ts.call(t, "POST", fmt.Sprintf("/api/submissions/%d/review", sub.ID), owner, map[string]bool{"approved": true}, nil)

	var item model.ShopItem
	if status := ts.call(t, "POST", fmt.Sprintf("/api/groups/%d/shop", groupID), owner, map[string]any{"name": "Movie night", "cost_points": 20, "limit_per_user": 1}, &item); status != http.StatusCreated {
		t.Fatalf("create item: status = %d", status)
	}

	var items []model.ShopItem
	ts.call(t, "GET", fmt.Sprintf("/api/groups/%d/shop", groupID), member, nil, &items)
	if len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}

	var res model.PurchaseResult
	if status := ts.call(t, "POST", fmt.Sprintf("/api/shop/%d/purchase", item.ID), member, nil, &res); status != http.StatusCreated {
		t.Fatalf("purchase: status = %d", status)
	}
	if res.Balance != 10 {
		t.Errorf("balance = %d, want 10", res.Balance)
	}
	ts.expectError(t, "POST", fmt.Sprintf("/api/shop/%d/purchase", item.ID), member, nil, http.StatusConflict, "purchase_limit_reached")
	ts.expectError(t, "POST", fmt.Sprintf("/api/shop/%d/purchase", item.ID), owner, nil, http.StatusConflict, "insufficient_points")
	ts.expectError(t, "POST", "/api/shop/999/purchase", member, nil, http.StatusNotFound, "item_not_found")

	var mine, all []model.PurchaseRecord
	ts.call(t, "GET", "/api/me/purchases", member, nil, &mine)
	ts.call(t, "GET", fmt.Sprintf("/api/groups/%d/purchases", groupID), owner, nil, &all)
	if len(mine) != 1 || len(all) != 1 {
		t.Errorf("purchases mine = %d all = %d, want 1 and 1", len(mine), len(all))
	}

	resp := ts.request(t, "DELETE", fmt.Sprintf("/api/shop/%d", item.ID), owner, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete item: status = %d, want 204", resp.StatusCode)
	}
}

func TestMembershipOverHTTP(t *testing.T) {
	ts := setupServer(t, "")
	groupID, owner, member, memberID := ts.setupGroup(t)

	var detail model.GroupDetail
	ts.call(t, "GET", fmt.Sprintf("/api/groups/%d", groupID), member, nil, &detail)
	if detail.InviteCode != nil {
		t.Error("invite code visible to a non-host member")
	}
	if len(detail.Members) != 2 {
		t.Errorf("members = %d, want 2", len(detail.Members))
	}

	var m model.Membership
	if status := ts.call(t, "PUT", fmt.Sprintf("/api/groups/%d/members/%d/role", groupID, memberID), owner, map[string]bool{"is_host": true}, &m); status != http.StatusOK {
		t.Fatalf("set role: status = %d", status)
	}
	if !m.IsHost {
		t.Error("expected member promoted to host")
	}
	ts.call(t, "GET", fmt.Sprintf("/api/groups/%d", groupID), member, nil, &detail)
	if detail.InviteCode == nil {
		t.Error("expected invite code visible to a promoted host")
	}

	ts.expectError(t, "POST", fmt.Sprintf("/api/groups/%d/leave", groupID), owner, nil, http.StatusBadRequest, "invalid_input")
	ts.expectError(t, "DELETE", fmt.Sprintf("/api/groups/%d", groupID), member, nil, http.StatusForbidden, "permission_denied")
	ts.expectError(t, "POST", "/api/groups/join", member, map[string]string{"invite_code": "NOPE0000"}, http.StatusNotFound, "invalid_invite_code")

	resp := ts.request(t, "DELETE", fmt.Sprintf("/api/groups/%d/members/%d", groupID, memberID), owner, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove member: status = %d, want 204", resp.StatusCode)
	}
	ts.expectError(t, "GET", fmt.Sprintf("/api/groups/%d", groupID), member, nil, http.StatusForbidden, "not_a_member")
	ts.expectError(t, "GET", "/api/groups/abc", owner, nil, http.StatusBadRequest, "invalid_input")
}

func TestAuthOverHTTP(t *testing.T) {
	ts := setupServer(t, "")
	id, token := ts.signUp(t, "Olive")

	var me model.Account
	if status := ts.call(t, "GET", "/api/me", token, nil, &me); status != http.StatusOK {
		t.Fatalf("me: status = %d", status)
	}
	if me.ID != id || me.Name != "Olive" {
		t.Errorf("me = %+v, want Olive", me)
	}

	ts.expectError(t, "GET", "/api/me", "", nil, http.StatusUnauthorized, "unauthorized")
	ts.expectError(t, "GET", "/api/me", "garbage", nil, http.StatusUnauthorized, "unauthorized")
	ts.expectError(t, "POST", "/api/token", "", map[string]any{"account_id": id, "password": "wrong password"}, http.StatusUnauthorized, "invalid_credentials")
	ts.expectError(t, "POST", "/api/token", "", map[string]any{"account_id": 999, "password": "correct horse"}, http.StatusUnauthorized, "invalid_credentials")
	ts.expectError(t, "POST", "/api/accounts", "", map[string]string{"name": "Short", "password": "abc"}, http.StatusBadRequest, "invalid_input")
}

func TestAppKeyOverHTTP(t *testing.T) {
	ts := setupServer(t, "app-key")

	resp, err := http.Post(ts.URL+"/api/accounts", "application/json", strings.NewReader(`{"name":"Olive","password":"correct horse"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without app key: status = %d, want 401", resp.StatusCode)
	}

	// The helper sends the key.
	ts.signUp(t, "Olive")

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsOverHTTP(t *testing.T) {
	ts := setupServer(t, "")
	ts.signUp(t, "Olive")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	out := string(data)

	for _, want := range []string{
		`homequest_http_requests_total{method="POST",route="POST /api/accounts",status="201"} 1`,
		`homequest_websocket_clients 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func waitForClients(t *testing.T, hub *ws.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGroupStreamOverHTTP(t *testing.T) {
	ts := setupServer(t, "")
	groupID, owner, member, memberID := ts.setupGroup(t)
	_, outsider := ts.signUp(t, "Nell")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + fmt.Sprintf("/api/groups/%d/ws", groupID)

	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + outsider}},
	})
	if err == nil {
		t.Fatal("expected outsider dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("outsider dial response = %v, want 403", resp)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + member}},
	})
	if err != nil {
		t.Fatalf("member dial: %v", err)
	}
	defer conn.CloseNow()
	waitForClients(t, ts.hub, 1)

	ts.call(t, "POST", fmt.Sprintf("/api/groups/%d/quests", groupID), owner, map[string]any{"name": "Dishes"}, nil)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "quest_created" || msg.GroupID != groupID {
		t.Errorf("message = %+v, want quest_created for group %d", msg, groupID)
	}

	// Removing the member ends their stream.
	resp2 := ts.request(t, "DELETE", fmt.Sprintf("/api/groups/%d/members/%d", groupID, memberID), owner, nil, "")
	resp2.Body.Close()
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Errorf("read after removal err = %v, want policy violation close", err)
	}
	waitForClients(t, ts.hub, 0)
}

func TestGroupStreamWithQueryCredentials(t *testing.T) {
	ts := setupServer(t, "k3y")
	groupID, owner, member, _ := ts.setupGroup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + fmt.Sprintf("/api/groups/%d/ws", groupID)

	// Browsers cannot set headers on the upgrade, so both credentials
	// travel in the query string.
	_, resp, err := websocket.Dial(ctx, base+"?access_token="+member, nil)
	if err == nil {
		t.Fatal("expected dial without app key to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("dial without app key response = %v, want 401", resp)
	}

	conn, _, err := websocket.Dial(ctx, base+"?app_key=k3y&access_token="+member, nil)
	if err != nil {
		t.Fatalf("member dial: %v", err)
	}
	defer conn.CloseNow()
	waitForClients(t, ts.hub, 1)

	ts.call(t, "POST", fmt.Sprintf("/api/groups/%d/quests", groupID), owner, map[string]any{"name": "Laundry"}, nil)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "quest_created" {
		t.Errorf("message type = %q, want quest_created", msg.Type)
	}
}
