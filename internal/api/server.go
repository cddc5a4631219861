package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"forge-market/internal/account"
	"forge-market/internal/apperr"
	"forge-market/internal/auth"
	"forge-market/internal/dashboard"
	"forge-market/internal/lifecycle"
	"forge-market/internal/media"
	"forge-market/internal/model"
)

// Account 抽象注册登录接口。
type Account interface {
	Signup(ctx context.Context, in account.SignupInput) (account.AuthResult, error)
	Login(ctx context.Context, email, password string) (account.AuthResult, error)
}

// Lifecycle 抽象工单生命周期接口。
type Lifecycle interface {
	CreateJob(ctx context.Context, in lifecycle.CreateJobInput, creatorID string) (*model.Job, error)
	SubmitQuote(ctx context.Context, jobID string, in lifecycle.QuoteInput, plumberID string) (*model.Quote, error)
	UpdateStatus(ctx context.Context, jobID string, in lifecycle.StatusInput, actor auth.Identity) (*model.Job, error)
	AttachPhoto(ctx context.Context, jobID string, in lifecycle.PhotoInput) (*model.Photo, error)
	CreateReview(ctx context.Context, jobID string, in lifecycle.ReviewInput, authorID string) (*model.Review, error)
}

// Dashboard 抽象水管工仪表盘接口。
type Dashboard interface {
	GetSnapshot(ctx context.Context, userID string) (dashboard.Snapshot, error)
	JobFeed(ctx context.Context, userID string) ([]model.Job, error)
	SetAvailability(ctx context.Context, userID string, isActive bool) (bool, error)
	SavePreferences(ctx context.Context, userID string, in dashboard.PreferencesInput) (*model.JobPreference, error)
}

// TokenVerifier 校验访问令牌。
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// PhotoSaver 保存上传的照片文件。
type PhotoSaver interface {
	Save(originalName string, r io.Reader) (media.StoredFile, error)
}

// NewHandler 构造 HTTP 多路复用器。
func NewHandler(acct Account, jobs Lifecycle, dash Dashboard, tokens TokenVerifier, photos PhotoSaver, uploadDir string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{acct: acct, jobs: jobs, dash: dash, tokens: tokens, photos: photos, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("POST /api/jobs", s.authed(s.requireRole(s.handleCreateJob, model.RoleHomeowner, model.RoleDispatcher)))
	mux.HandleFunc("POST /api/jobs/{id}/quote", s.authed(s.requireRole(s.handleSubmitQuote, model.RolePlumber)))
	mux.HandleFunc("POST /api/jobs/{id}/status", s.authed(s.handleUpdateStatus))
	mux.HandleFunc("POST /api/jobs/{id}/photo", s.authed(s.handleUploadPhoto))
	mux.HandleFunc("POST /api/jobs/{id}/review", s.authed(s.requireRole(s.handleCreateReview, model.RoleHomeowner)))

	mux.HandleFunc("GET /api/plumber/jobs", s.authed(s.requireRole(s.handleJobFeed, model.RolePlumber)))
	mux.HandleFunc("GET /api/plumber/dashboard", s.authed(s.requireRole(s.handleDashboard, model.RolePlumber)))
	mux.HandleFunc("PUT /api/plumber/availability", s.authed(s.requireRole(s.handleAvailability, model.RolePlumber)))
	mux.HandleFunc("PUT /api/plumber/preferences", s.authed(s.requireRole(s.handlePreferences, model.RolePlumber)))

	if uploadDir != "" {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))
	}

	return recoverPanics(logRequests(withCORS(mux), logger), logger)
}

type server struct {
	acct   Account
	jobs   Lifecycle
	dash   Dashboard
	tokens TokenVerifier
	photos PhotoSaver
	logger *slog.Logger
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in account.SignupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, apperr.Validation("invalid payload"))
		return
	}
	res, err := s.acct.Signup(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, apperr.Validation("invalid payload"))
		return
	}
	res, err := s.acct.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	var in lifecycle.CreateJobInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, apperr.Validation("invalid payload"))
		return
	}
	job, err := s.jobs.CreateJob(r.Context(), in, actor.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}

func (s *server) handleSubmitQuote(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	var in lifecycle.QuoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, apperr.Validation("invalid payload"))
		return
	}
	quote, err := s.jobs.SubmitQuote(r.Context(), r.PathValue("id"), in, actor.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"quote": quote})
}

func (s *server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	var in lifecycle.StatusInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, apperr.Validation("invalid payload"))
		return
	}
	job, err := s.jobs.UpdateStatus(r.Context(), r.PathValue("id"), in, actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	if err := r.ParseMultipartForm(media.DefaultMaxBytes); err != nil {
		s.writeError(w, apperr.Validation("invalid multipart payload"))
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		s.writeError(w, apperr.Validation("no file uploaded"))
		return
	}
	defer file.Close()

	stored, err := s.photos.Save(header.Filename, file)
	if err != nil {
		s.writeError(w, err)
		return
	}

	photo, err := s.jobs.AttachPhoto(r.Context(), r.PathValue("id"), lifecycle.PhotoInput{
		Filename:     stored.Filename,
		URL:          stored.URL,
		Caption:      r.FormValue("caption"),
		UploadedByID: actor.ID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"photo": photo})
}

func (s *server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	var in lifecycle.ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, apperr.Validation("invalid payload"))
		return
	}
	review, err := s.jobs.CreateReview(r.Context(), r.PathValue("id"), in, actor.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"review": review})
}

func (s *server) handleJobFeed(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	jobs, err := s.dash.JobFeed(r.Context(), actor.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	snapshot, err := s.dash.GetSnapshot(r.Context(), actor.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	var in struct {
		IsActive *bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.IsActive == nil {
		s.writeError(w, apperr.Validation("is_active must be a boolean"))
		return
	}
	active, err := s.dash.SetAvailability(r.Context(), actor.ID, *in.IsActive)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

func (s *server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	var in dashboard.PreferencesInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, apperr.Validation("invalid payload"))
		return
	}
	pref, err := s.dash.SavePreferences(r.Context(), actor.ID, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": pref})
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.Any("err", err))
	}
	writeJSON(w, status, map[string]string{"error": apperr.Reason(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
