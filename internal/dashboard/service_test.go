package dashboard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"forge-market/internal/apperr"
	"forge-market/internal/model"
	"forge-market/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "forge.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store), store
}

func seedPlumber(t *testing.T, store *storage.Store, userID string, xp int) *model.PlumberProfile {
	t.Helper()
	ctx := context.Background()
	user := &model.User{ID: userID, Email: userID + "@forge.com", Role: model.RolePlumber}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	profile := &model.PlumberProfile{
		ID:     "profile-" + userID,
		UserID: userID,
		XP:     xp,
		Level:  model.LevelForXP(xp),
	}
	if err := store.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("CreateProfile error: %v", err)
	}
	return profile
}

func TestWindowHelpers(t *testing.T) {
	t.Parallel()

	// Wednesday 2024-03-06 15:30 local.
	now := time.Date(2024, 3, 6, 15, 30, 0, 0, time.UTC)

	if got := startOfToday(now); !got.Equal(time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("startOfToday = %v", got)
	}
	// Week starts on Sunday.
	if got := startOfWeek(now); !got.Equal(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("startOfWeek = %v", got)
	}
	if got := startOfMonth(now); !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("startOfMonth = %v", got)
	}

	// A Sunday is its own week start.
	sunday := time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)
	if got := startOfWeek(sunday); !got.Equal(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("startOfWeek on sunday = %v", got)
	}
}

func TestGetSnapshot(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	profile := seedPlumber(t, store, "plumber", 1250)

	now := time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	// 250 today, 180 yesterday (same week and month), 90 last year.
	earnings := []model.Earning{
		{PlumberID: "plumber", JobID: "j1", Amount: 250, XPAwarded: 150, CreatedAt: now.Add(-2 * time.Hour)},
		{PlumberID: "plumber", JobID: "j2", Amount: 180, XPAwarded: 100, CreatedAt: now.AddDate(0, 0, -1)},
		{PlumberID: "plumber", JobID: "j3", Amount: 90, XPAwarded: 100, CreatedAt: now.AddDate(-1, 0, 0)},
	}
	for i := range earnings {
		if err := store.CreateEarning(ctx, &earnings[i]); err != nil {
			t.Fatalf("CreateEarning error: %v", err)
		}
	}

	plumberID := "plumber"
	done := now.Add(-time.Hour)
	jobs := []model.Job{
		{ID: "j-open", Status: model.JobRequested, Address: "a", CreatedByID: "o"},
		{ID: "j-active", Status: model.JobInProgress, Address: "a", CreatedByID: "o", AssignedToID: &plumberID},
		{ID: "j-done", Status: model.JobCompleted, Address: "a", CreatedByID: "o", AssignedToID: &plumberID, CompletedAt: &done},
	}
	for i := range jobs {
		if err := store.CreateJob(ctx, &jobs[i]); err != nil {
			t.Fatalf("CreateJob error: %v", err)
		}
	}

	if err := store.EnsureBadges(ctx, []model.Badge{{ID: "b1", Name: "First Job", Icon: "🔧"}}); err != nil {
		t.Fatalf("EnsureBadges error: %v", err)
	}
	if _, err := store.UnlockBadge(ctx, profile.ID, "b1", now); err != nil {
		t.Fatalf("UnlockBadge error: %v", err)
	}

	snap, err := svc.GetSnapshot(ctx, "plumber")
	if err != nil {
		t.Fatalf("GetSnapshot error: %v", err)
	}

	if snap.Profile.XP != 1250 || snap.Profile.Level != 3 {
		t.Fatalf("unexpected profile summary: %+v", snap.Profile)
	}
	if snap.Earnings.Today != 250 {
		t.Fatalf("expected today 250, got %v", snap.Earnings.Today)
	}
	if snap.Earnings.Week != 430 || snap.Earnings.Month != 430 {
		t.Fatalf("expected week/month 430, got %+v", snap.Earnings)
	}
	if snap.Earnings.Total != 520 {
		t.Fatalf("expected total 520, got %v", snap.Earnings.Total)
	}
	// Windows are nested, so the sums can only grow.
	if snap.Earnings.Today > snap.Earnings.Week ||
		snap.Earnings.Week > snap.Earnings.Month ||
		snap.Earnings.Month > snap.Earnings.Total {
		t.Fatalf("earnings windows not monotonic: %+v", snap.Earnings)
	}

	if snap.Jobs.Available != 1 || snap.Jobs.InProgress != 1 || snap.Jobs.Completed != 1 {
		t.Fatalf("unexpected job counts: %+v", snap.Jobs)
	}
	if len(snap.Badges) != 1 || snap.Badges[0].Name != "First Job" {
		t.Fatalf("unexpected badges: %+v", snap.Badges)
	}
}

func TestGetSnapshotMissingProfile(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.GetSnapshot(context.Background(), "nobody")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSetAvailability(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	seedPlumber(t, store, "plumber", 0)

	active, err := svc.SetAvailability(ctx, "plumber", true)
	if err != nil {
		t.Fatalf("SetAvailability error: %v", err)
	}
	if !active {
		t.Fatalf("expected active true")
	}

	snap, err := svc.GetSnapshot(ctx, "plumber")
	if err != nil {
		t.Fatalf("GetSnapshot error: %v", err)
	}
	if !snap.Profile.IsActive {
		t.Fatalf("expected snapshot to reflect availability")
	}

	if _, err := svc.SetAvailability(ctx, "nobody", true); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not-found for missing profile, got %v", err)
	}
}

func TestSavePreferencesDefaults(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	seedPlumber(t, store, "plumber", 0)

	pref, err := svc.SavePreferences(ctx, "plumber", PreferencesInput{})
	if err != nil {
		t.Fatalf("SavePreferences error: %v", err)
	}
	if pref.MaxDistanceKm != 50 {
		t.Fatalf("expected default radius 50, got %d", pref.MaxDistanceKm)
	}
	if pref.PreferredJobTypes == nil || len(pref.PreferredJobTypes) != 0 {
		t.Fatalf("expected empty job types, got %v", pref.PreferredJobTypes)
	}

	pref, err = svc.SavePreferences(ctx, "plumber", PreferencesInput{
		PreferredJobTypes: []string{"installation"},
		MaxDistanceKm:     20,
		MondayStart:       "08:00",
		MondayEnd:         "17:00",
	})
	if err != nil {
		t.Fatalf("SavePreferences overwrite error: %v", err)
	}
	if pref.MaxDistanceKm != 20 || pref.MondayStart != "08:00" {
		t.Fatalf("unexpected preference: %+v", pref)
	}
}

func TestJobFeedFiltersByPreference(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	seedPlumber(t, store, "plumber", 0)

	jobs := []model.Job{
		{ID: "j1", JobType: "leak_repair", Status: model.JobRequested, Urgency: model.UrgencyMedium, Address: "a", CreatedByID: "o"},
		{ID: "j2", JobType: "installation", Status: model.JobRequested, Urgency: model.UrgencyMedium, Address: "a", CreatedByID: "o"},
	}
	for i := range jobs {
		if err := store.CreateJob(ctx, &jobs[i]); err != nil {
			t.Fatalf("CreateJob error: %v", err)
		}
	}

	// No preference yet: the feed shows everything open.
	feed, err := svc.JobFeed(ctx, "plumber")
	if err != nil {
		t.Fatalf("JobFeed error: %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("expected full feed, got %d jobs", len(feed))
	}

	if _, err := svc.SavePreferences(ctx, "plumber", PreferencesInput{
		PreferredJobTypes: []string{"installation"},
	}); err != nil {
		t.Fatalf("SavePreferences error: %v", err)
	}

	feed, err = svc.JobFeed(ctx, "plumber")
	if err != nil {
		t.Fatalf("JobFeed error: %v", err)
	}
	if len(feed) != 1 || feed[0].ID != "j2" {
		t.Fatalf("expected filtered feed, got %+v", feed)
	}
}
