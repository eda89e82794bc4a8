// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package api

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/opportune-hq/opportuned/internal/authclient"
	"github.com/opportune-hq/opportuned/internal/config"
	"github.com/opportune-hq/opportuned/internal/database"
	"github.com/opportune-hq/opportuned/internal/geomask"
	"github.com/opportune-hq/opportuned/internal/models"
)

const (
	testID      = "11111111-1111-4111-8111-111111111111"
	reviewerID  = "reviewer-1"
	submitterID = "submitter-1"
)

type fakeStore struct {
	opportunities map[string]*models.Opportunity
	updateErr     error
	pingErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{opportunities: make(map[string]*models.Opportunity)}
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*models.Opportunity, error) {
	opp, ok := s.opportunities[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return opp, nil
}

func (s *fakeStore) matches(opp *models.Opportunity, f database.ListFilter) bool {
	if f.Status != "" && opp.Status != f.Status {
		return false
	}
	if f.Category != "" && opp.Category() != f.Category {
		return false
	}
	return true
}

func (s *fakeStore) List(_ context.Context, f database.ListFilter) ([]*models.Opportunity, error) {
	var out []*models.Opportunity
	for _, opp := range s.opportunities {
		if s.matches(opp, f) {
			out = append(out, opp)
		}
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *fakeStore) Count(_ context.Context, f database.ListFilter) (int, error) {
	n := 0
	for _, opp := range s.opportunities {
		if s.matches(opp, f) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListChangedBy(_ context.Context, userID string, limit, offset int) ([]*models.Opportunity, error) {
	var out []*models.Opportunity
	for _, opp := range s.opportunities {
		for _, change := range opp.StatusHistory {
			if change.ChangedBy == userID {
				out = append(out, opp)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) CountChangedBy(ctx context.Context, userID string) (int, error) {
	opps, _ := s.ListChangedBy(ctx, userID, 0, 0)
	return len(opps), nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, expected, target models.Status, changedBy string) (*models.StatusChange, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	opp, ok := s.opportunities[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if opp.Status != expected {
		if opp.Status == target {
			return nil, database.ErrNoChange
		}
		return nil, database.ErrConflict
	}
	change := models.StatusChange{
		From:      expected,
		To:        target,
		ChangedBy: changedBy,
		ChangedAt: time.Now().UTC(),
	}
	opp.Status = target
	opp.StatusHistory = append(opp.StatusHistory, change)
	return &change, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

type fakeValidator struct {
	identity *authclient.Identity
	err      error
}

func (v *fakeValidator) Validate(context.Context, string) (*authclient.Identity, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

func testOpportunity(id string, status models.Status) *models.Opportunity {
	return &models.Opportunity{
		ID:        id,
		EventType: "opportunity.created",
		Data: map[string]any{
			"title":       "River cleanup",
			"category":    "environment",
			"submitterId": submitterID,
			"contact": map[string]any{
				"email": "owner@example.com",
			},
			"project": map[string]any{
				"location": map[string]any{"lat": 52.52, "lng": 13.405},
			},
		},
		Status:    status,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func newTestServer(t *testing.T, store Store, validator *fakeValidator) *httptest.Server {
	t.Helper()

	apiCfg := &config.APIConfig{
		DefaultPageSize: 20,
		MaxPageSize:     50,
		RateLimitReqs:   10000,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"*"},
	}
	maskCfg := &config.MaskConfig{ListRadiusKM: 5, MapRadiusKM: 3}

	handler := NewHandler(store, geomask.NewWithRand(rand.New(rand.NewSource(1))), apiCfg, maskCfg)
	srv := httptest.NewServer(NewRouter(handler, validator, apiCfg).Setup())
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, APIResponse) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var envelope APIResponse
	if resp.StatusCode != http.StatusNotModified {
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, envelope
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/opportunities/")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}
}

func TestAuthServiceUnavailable(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &fakeValidator{err: authclient.ErrServiceUnavailable})

	resp, envelope := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error envelope = %+v", envelope.Error)
	}
}

func TestListOnlyPublicAndMasked(t *testing.T) {
	store := newFakeStore()
	store.opportunities[testID] = testOpportunity(testID, models.StatusPublic)
	hidden := "22222222-2222-4222-8222-222222222222"
	store.opportunities[hidden] = testOpportunity(hidden, models.StatusInReview)

	srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})

	resp, envelope := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	raw, _ := json.Marshal(envelope.Data)
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("listed %d opportunities, want 1 public", len(items))
	}

	data := items[0]["data"].(map[string]any)
	if _, leaked := data["contact"]; leaked {
		t.Error("contact block must be removed from listings")
	}
	location := data["project"].(map[string]any)["location"].(map[string]any)
	if location["lat"].(float64) == 52.52 && location["lng"].(float64) == 13.405 {
		t.Error("coordinates must be masked in listings")
	}

	if envelope.Meta == nil || envelope.Meta.Pagination == nil {
		t.Fatal("pagination metadata missing")
	}
	if envelope.Meta.Pagination.Total != 1 {
		t.Errorf("total = %d, want 1", envelope.Meta.Pagination.Total)
	}
}

func TestListRejectsOversizedLimit(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})

	resp, envelope := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/?limit=51", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeBadRequest {
		t.Errorf("error envelope = %+v", envelope.Error)
	}
}

func TestListRejectsPageOutOfRange(t *testing.T) {
	store := newFakeStore()
	store.opportunities[testID] = testOpportunity(testID, models.StatusPublic)
	srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})

	resp, envelope := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/?page=99", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	details, ok := envelope.Error.Details.(map[string]any)
	if !ok {
		t.Fatalf("details = %T, want object", envelope.Error.Details)
	}
	if details["valid_pages"] != "1-1" {
		t.Errorf("valid_pages = %v, want 1-1", details["valid_pages"])
	}
}

func TestMapEndpointReturnsMaskedPoints(t *testing.T) {
	store := newFakeStore()
	store.opportunities[testID] = testOpportunity(testID, models.StatusPublic)
	srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})

	resp, envelope := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/map", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	raw, _ := json.Marshal(envelope.Data)
	var points []mapPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		t.Fatalf("decode points: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if points[0].ID != testID {
		t.Errorf("point id = %q", points[0].ID)
	}
	if d := geomask.DistanceKM(52.52, 13.405, points[0].Lat, points[0].Lng); d > 3.1 {
		t.Errorf("map point %f km from origin, want within map radius", d)
	}
	if points[0].Lat == 52.52 && points[0].Lng == 13.405 {
		t.Error("map coordinates must be masked")
	}
}

func TestGetOpportunity(t *testing.T) {
	store := newFakeStore()
	store.opportunities[testID] = testOpportunity(testID, models.StatusPublic)

	t.Run("malformed id", func(t *testing.T) {
		srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})
		resp, _ := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/not-a-uuid", "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})
		resp, envelope := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/99999999-9999-4999-8999-999999999999", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
		if envelope.Error == nil || envelope.Error.Code != ErrCodeNotFound {
			t.Errorf("error envelope = %+v", envelope.Error)
		}
	})

	t.Run("masked for non-submitter", func(t *testing.T) {
		srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})
		resp, envelope := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/"+testID, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		raw, _ := json.Marshal(envelope.Data)
		var opp map[string]any
		if err := json.Unmarshal(raw, &opp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		data := opp["data"].(map[string]any)
		if _, leaked := data["contact"]; leaked {
			t.Error("contact must be hidden from non-submitters")
		}
	})

	t.Run("unmasked for submitter", func(t *testing.T) {
		srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: submitterID}})
		resp, envelope := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/"+testID, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		raw, _ := json.Marshal(envelope.Data)
		var opp map[string]any
		if err := json.Unmarshal(raw, &opp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		data := opp["data"].(map[string]any)
		if _, present := data["contact"]; !present {
			t.Error("submitter should see their own contact block")
		}
		location := data["project"].(map[string]any)["location"].(map[string]any)
		if location["lat"].(float64) != 52.52 {
			t.Error("submitter should see exact coordinates")
		}
	})
}

func TestUpdateStatus(t *testing.T) {
	newServer := func(t *testing.T, status models.Status) (*httptest.Server, *fakeStore) {
		store := newFakeStore()
		store.opportunities[testID] = testOpportunity(testID, status)
		return newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}}), store
	}
	statusPath := fmt.Sprintf("/api/v1/opportunities/%s/status", testID)

	t.Run("valid transition", func(t *testing.T) {
		srv, store := newServer(t, models.StatusInReview)
		resp, envelope := doRequest(t, srv, http.MethodPatch, statusPath, `{"status":"public"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		raw, _ := json.Marshal(envelope.Data)
		var result map[string]any
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if result["previousStatus"] != "in_review" || result["newStatus"] != "public" {
			t.Errorf("transition payload = %v", result)
		}
		if result["changedBy"] != reviewerID {
			t.Errorf("changedBy = %v", result["changedBy"])
		}
		if store.opportunities[testID].Status != models.StatusPublic {
			t.Errorf("stored status = %s", store.opportunities[testID].Status)
		}
	})

	t.Run("repeat of current status is 304", func(t *testing.T) {
		srv, _ := newServer(t, models.StatusPublic)
		resp, _ := doRequest(t, srv, http.MethodPatch, statusPath, `{"status":"public"}`)
		if resp.StatusCode != http.StatusNotModified {
			t.Errorf("status = %d, want 304", resp.StatusCode)
		}
	})

	t.Run("illegal transition carries table", func(t *testing.T) {
		srv, _ := newServer(t, models.StatusInReview)
		resp, envelope := doRequest(t, srv, http.MethodPatch, statusPath, `{"status":"private"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		if envelope.Error.Code != ErrCodeInvalidTransition {
			t.Errorf("code = %s, want %s", envelope.Error.Code, ErrCodeInvalidTransition)
		}
		details, ok := envelope.Error.Details.(map[string]any)
		if !ok {
			t.Fatalf("details = %T", envelope.Error.Details)
		}
		if _, ok := details["transitions"]; !ok {
			t.Error("details must include the transition table")
		}
		if _, ok := details["allowed"]; !ok {
			t.Error("details must include allowed targets")
		}
	})

	t.Run("terminal status rejects all transitions", func(t *testing.T) {
		srv, _ := newServer(t, models.StatusPrivate)
		resp, envelope := doRequest(t, srv, http.MethodPatch, statusPath, `{"status":"public"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		if envelope.Error.Code != ErrCodeInvalidTransition {
			t.Errorf("code = %s", envelope.Error.Code)
		}
	})

	t.Run("unknown status value", func(t *testing.T) {
		srv, _ := newServer(t, models.StatusInReview)
		resp, envelope := doRequest(t, srv, http.MethodPatch, statusPath, `{"status":"archived"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		if envelope.Error.Code != ErrCodeValidationFailed {
			t.Errorf("code = %s, want %s", envelope.Error.Code, ErrCodeValidationFailed)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		srv, _ := newServer(t, models.StatusInReview)
		resp, _ := doRequest(t, srv, http.MethodPatch, statusPath, `{status`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("concurrent modification", func(t *testing.T) {
		srv, store := newServer(t, models.StatusInReview)
		store.updateErr = database.ErrConflict
		resp, envelope := doRequest(t, srv, http.MethodPatch, statusPath, `{"status":"public"}`)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("status = %d, want 409", resp.StatusCode)
		}
		if envelope.Error.Code != ErrCodeConflict {
			t.Errorf("code = %s", envelope.Error.Code)
		}
	})
}

func TestStatusWalk(t *testing.T) {
	store := newFakeStore()
	store.opportunities[testID] = testOpportunity(testID, models.StatusInReview)
	srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})
	statusPath := fmt.Sprintf("/api/v1/opportunities/%s/status", testID)

	steps := []struct {
		body       string
		wantStatus int
	}{
		{`{"status":"public"}`, http.StatusOK},
		{`{"status":"public"}`, http.StatusNotModified},
		{`{"status":"private"}`, http.StatusOK},
		{`{"status":"public"}`, http.StatusBadRequest},
		{`{"status":"rejected"}`, http.StatusBadRequest},
	}
	for i, step := range steps {
		resp, _ := doRequest(t, srv, http.MethodPatch, statusPath, step.body)
		if resp.StatusCode != step.wantStatus {
			t.Fatalf("step %d (%s): status = %d, want %d", i, step.body, resp.StatusCode, step.wantStatus)
		}
	}
	if store.opportunities[testID].Status != models.StatusPrivate {
		t.Errorf("final status = %s, want private", store.opportunities[testID].Status)
	}
}

func TestMyChanges(t *testing.T) {
	store := newFakeStore()
	opp := testOpportunity(testID, models.StatusPublic)
	opp.StatusHistory = []models.StatusChange{
		{From: models.StatusInReview, To: models.StatusPublic, ChangedBy: reviewerID, ChangedAt: time.Now().UTC()},
		{From: models.StatusPublic, To: models.StatusPrivate, ChangedBy: "someone-else", ChangedAt: time.Now().UTC()},
	}
	store.opportunities[testID] = opp
	srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})

	resp, envelope := doRequest(t, srv, http.MethodGet, "/api/v1/opportunities/my-changes", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	raw, _ := json.Marshal(envelope.Data)
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	mine, ok := items[0]["myChanges"].([]any)
	if !ok {
		t.Fatalf("myChanges = %T", items[0]["myChanges"])
	}
	if len(mine) != 1 {
		t.Errorf("annotated %d changes, want only the caller's 1", len(mine))
	}
}

func TestHealthEndpoint(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, &fakeValidator{identity: &authclient.Identity{UserID: reviewerID}})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw, _ := json.Marshal(envelope.Data)
	var health healthStatus
	if err := json.Unmarshal(raw, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("health status = %s", health.Status)
	}
	if health.Components["database"] != "up" {
		t.Errorf("database component = %s", health.Components["database"])
	}
}
