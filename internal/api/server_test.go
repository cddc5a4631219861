package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"forge-market/internal/account"
	"forge-market/internal/apperr"
	"forge-market/internal/auth"
	"forge-market/internal/dashboard"
	"forge-market/internal/lifecycle"
	"forge-market/internal/media"
	"forge-market/internal/model"
)

type stubAccount struct {
	signupErr error
	loginErr  error
}

func (s *stubAccount) Signup(context.Context, account.SignupInput) (account.AuthResult, error) {
	if s.signupErr != nil {
		return account.AuthResult{}, s.signupErr
	}
	return account.AuthResult{User: model.User{ID: "u1"}, Token: "tok"}, nil
}

func (s *stubAccount) Login(context.Context, string, string) (account.AuthResult, error) {
	if s.loginErr != nil {
		return account.AuthResult{}, s.loginErr
	}
	return account.AuthResult{User: model.User{ID: "u1"}, Token: "tok"}, nil
}

type stubLifecycle struct {
	lastCreator string
	lastActor   auth.Identity
	err         error
}

func (s *stubLifecycle) CreateJob(_ context.Context, _ lifecycle.CreateJobInput, creatorID string) (*model.Job, error) {
	s.lastCreator = creatorID
	if s.err != nil {
		return nil, s.err
	}
	return &model.Job{ID: "j1", Status: model.JobRequested}, nil
}

func (s *stubLifecycle) SubmitQuote(_ context.Context, jobID string, _ lifecycle.QuoteInput, plumberID string) (*model.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.Quote{ID: "q1", JobID: jobID, PlumberID: plumberID}, nil
}

func (s *stubLifecycle) UpdateStatus(_ context.Context, jobID string, in lifecycle.StatusInput, actor auth.Identity) (*model.Job, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	return &model.Job{ID: jobID, Status: in.Status}, nil
}

func (s *stubLifecycle) AttachPhoto(_ context.Context, jobID string, in lifecycle.PhotoInput) (*model.Photo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.Photo{ID: "ph1", JobID: jobID, Filename: in.Filename, URL: in.URL}, nil
}

func (s *stubLifecycle) CreateReview(_ context.Context, jobID string, in lifecycle.ReviewInput, authorID string) (*model.Review, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.Review{ID: "r1", JobID: jobID, AuthorID: authorID, Rating: in.Rating}, nil
}

type stubDashboard struct {
	err error
}

func (s *stubDashboard) GetSnapshot(context.Context, string) (dashboard.Snapshot, error) {
	if s.err != nil {
		return dashboard.Snapshot{}, s.err
	}
	return dashboard.Snapshot{Profile: dashboard.ProfileSummary{XP: 1250, Level: 3}}, nil
}

func (s *stubDashboard) JobFeed(context.Context, string) ([]model.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []model.Job{{ID: "j1"}}, nil
}

func (s *stubDashboard) SetAvailability(_ context.Context, _ string, isActive bool) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return isActive, nil
}

func (s *stubDashboard) SavePreferences(context.Context, string, dashboard.PreferencesInput) (*model.JobPreference, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.JobPreference{MaxDistanceKm: 50}, nil
}

// stubTokens 以令牌字符串直查身份表。
type stubTokens struct {
	identities map[string]auth.Identity
}

func (s *stubTokens) Verify(token string) (auth.Identity, error) {
	if id, ok := s.identities[token]; ok {
		return id, nil
	}
	return auth.Identity{}, apperr.Unauthorized("invalid token")
}

type stubPhotos struct {
	err error
}

func (s *stubPhotos) Save(originalName string, r io.Reader) (media.StoredFile, error) {
	if s.err != nil {
		return media.StoredFile{}, s.err
	}
	_, _ = io.Copy(io.Discard, r)
	return media.StoredFile{Filename: "photo-1.jpg", URL: "/uploads/photo-1.jpg"}, nil
}

type testEnv struct {
	handler http.Handler
	jobs    *stubLifecycle
	acct    *stubAccount
	dash    *stubDashboard
	photos  *stubPhotos
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		jobs:   &stubLifecycle{},
		acct:   &stubAccount{},
		dash:   &stubDashboard{},
		photos: &stubPhotos{},
	}
	tokens := &stubTokens{identities: map[string]auth.Identity{
		"owner-token":   {ID: "owner", Role: model.RoleHomeowner},
		"plumber-token": {ID: "plumber", Role: model.RolePlumber},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.handler = NewHandler(env.acct, env.jobs, env.dash, tokens, env.photos, "", logger)
	return env
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := doJSON(t, env.handler, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSignupAndLogin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "a@b.c"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	env.acct.signupErr = apperr.Conflict("user already exists")
	rec = doJSON(t, env.handler, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "a@b.c"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload["error"] != "user already exists" {
		t.Fatalf("unexpected error body: %v", payload)
	}

	rec = doJSON(t, env.handler, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.c", "password": "x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/jobs", "", map[string]string{"title": "t"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, env.handler, http.MethodPost, "/api/jobs", "garbage", map[string]string{"title": "t"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestRoleEnforcement(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// Plumbers cannot create jobs.
	rec := doJSON(t, env.handler, http.MethodPost, "/api/jobs", "plumber-token", map[string]string{"title": "t"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plumber creating job, got %d", rec.Code)
	}

	// Homeowners cannot quote.
	rec = doJSON(t, env.handler, http.MethodPost, "/api/jobs/j1/quote", "owner-token", map[string]string{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for homeowner quoting, got %d", rec.Code)
	}

	// Homeowners cannot read the plumber dashboard.
	rec = doJSON(t, env.handler, http.MethodGet, "/api/plumber/dashboard", "owner-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for homeowner dashboard, got %d", rec.Code)
	}
}

func TestCreateJobPassesCreator(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := doJSON(t, env.handler, http.MethodPost, "/api/jobs", "owner-token", map[string]string{"title": "t"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if env.jobs.lastCreator != "owner" {
		t.Fatalf("expected creator from token, got %q", env.jobs.lastCreator)
	}
}

func TestUpdateStatusErrorMapping(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.jobs.err = apperr.InvalidState("cannot transition from COMPLETED to QUOTED")

	rec := doJSON(t, env.handler, http.MethodPost, "/api/jobs/j1/status", "plumber-token", map[string]string{"status": "QUOTED"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.jobs.lastActor.ID != "plumber" {
		t.Fatalf("expected actor from token, got %+v", env.jobs.lastActor)
	}
}

func TestAvailabilityRequiresBoolean(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := doJSON(t, env.handler, http.MethodPut, "/api/plumber/availability", "plumber-token", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without is_active, got %d", rec.Code)
	}

	rec = doJSON(t, env.handler, http.MethodPut, "/api/plumber/availability", "plumber-token", map[string]any{"is_active": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var payload map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !payload["is_active"] {
		t.Fatalf("expected is_active true, got %v", payload)
	}
}

func TestUploadPhoto(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("photo", "before.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile error: %v", err)
	}
	if _, err := part.Write([]byte("fake image bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := form.WriteField("caption", "before"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/j1/photo", &buf)
	req.Header.Set("Authorization", "Bearer owner-token")
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "photo-1.jpg") {
		t.Fatalf("expected stored filename in body, got %s", rec.Body)
	}
}

func TestUploadPhotoRejectsMissingFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("caption", "no file"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/j1/photo", &buf)
	req.Header.Set("Authorization", "Bearer owner-token")
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDashboardSnapshot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := doJSON(t, env.handler, http.MethodGet, "/api/plumber/dashboard", "plumber-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap dashboard.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Profile.XP != 1250 || snap.Profile.Level != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header set")
	}
}
