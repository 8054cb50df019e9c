package session

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visascout/pkg/models"
	"visascout/pkg/utils"
)

func snapshot(userID string) QuerySnapshot {
	return QuerySnapshot{
		UserID:                   userID,
		Location:                 "Sydney, NSW",
		JobTitle:                 "Backend Engineer",
		HoursOld:                 168,
		DatasetPath:              "/data/sponsors.csv",
		Sites:                    []string{"linkedin", "indeed"},
		RequireDescriptionSignal: false,
		PreferredVisaTypes:       []string{"e3_australian", "h1b"},
		StrictnessMode:           "balanced",
	}
}

func newTestStore(t *testing.T, ttl time.Duration, maxGlobal, maxPerUser int) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "sessions.json"), ttl, maxGlobal, maxPerUser)
}

func TestFingerprintDeterministic(t *testing.T) {
	a := snapshot("user-1")
	b := snapshot("user-1")

	// Casing and list ordering never split a session.
	b.Location = "sydney, nsw"
	b.JobTitle = "BACKEND ENGINEER"
	b.Sites = []string{"indeed", "linkedin"}
	b.PreferredVisaTypes = []string{"h1b", "e3_australian"}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintSensitiveFields(t *testing.T) {
	base := snapshot("user-1")

	changed := base
	changed.UserID = "user-2"
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))

	changed = base
	changed.HoursOld = 24
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))

	changed = base
	changed.StrictnessMode = "strict"
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))
}

func TestBeginMintsFreshSession(t *testing.T) {
	store := newTestStore(t, time.Hour, 200, 20)

	record, reused, err := store.Begin("", "fp-1")
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEmpty(t, record.SessionID)
	assert.NotContains(t, record.SessionID, "-")

	other, _, err := store.Begin("", "fp-1")
	require.NoError(t, err)
	assert.NotEqual(t, record.SessionID, other.SessionID)
}

func TestBeginUnknownSession(t *testing.T) {
	store := newTestStore(t, time.Hour, 200, 20)

	_, _, err := store.Begin("nope", "fp-1")
	require.Error(t, err)
	var custom *utils.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Contains(t, custom.Detail, "unknown session_id")
}

func TestBeginFingerprintMismatch(t *testing.T) {
	store := newTestStore(t, time.Hour, 200, 20)

	record, _, err := store.Begin("", "fp-1")
	require.NoError(t, err)
	record.Query = snapshot("user-1")
	require.NoError(t, store.Save(record))

	_, _, err = store.Begin(record.SessionID, "fp-other")
	require.Error(t, err)
	var custom *utils.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Contains(t, custom.Detail, "does not match this query")
}

func TestBeginExpiredSession(t *testing.T) {
	store := newTestStore(t, -time.Minute, 200, 20)

	record, _, err := store.Begin("", "fp-1")
	require.NoError(t, err)
	record.Query = snapshot("user-1")

	// Save with a negative TTL so the record lands already expired. The
	// prune on the way in removes it, so reuse reports an unknown id.
	require.NoError(t, store.Save(record))

	_, _, err = store.Begin(record.SessionID, "fp-1")
	require.Error(t, err)
	var custom *utils.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Contains(t, custom.Detail, "unknown session_id")
}

func TestSaveAndReuse(t *testing.T) {
	store := newTestStore(t, time.Hour, 200, 20)

	record, _, err := store.Begin("", "fp-1")
	require.NoError(t, err)
	record.Query = snapshot("user-1")
	record.AcceptedJobs = []models.AcceptedResult{
		{Title: "Backend Engineer", Company: "Acme", JobURL: "https://jobs.example/1"},
	}
	record.AcceptedJobs = AttachResultIDs(record.SessionID, record.AcceptedJobs)
	record.LatestScanTarget = 120
	require.NoError(t, store.Save(record))

	reloaded, reused, err := store.Begin(record.SessionID, "fp-1")
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, 120, reloaded.LatestScanTarget)
	assert.Equal(t, 1, reloaded.AcceptedJobsTotal)
	assert.Equal(t, record.SessionID+":1", reloaded.AcceptedJobs[0].ResultID)
}

func TestAttachResultIDsIdempotent(t *testing.T) {
	jobs := []models.AcceptedResult{
		{Title: "A", ResultID: "sess:1"},
		{Title: "B"},
		{Title: "C"},
	}

	out := AttachResultIDs("sess", jobs)
	assert.Equal(t, "sess:1", out[0].ResultID)
	assert.Equal(t, "sess:2", out[1].ResultID)
	assert.Equal(t, "sess:3", out[2].ResultID)

	again := AttachResultIDs("sess", out)
	assert.Equal(t, out, again)
}

func TestGetRejectsCrossUser(t *testing.T) {
	store := newTestStore(t, time.Hour, 200, 20)

	record, _, err := store.Begin("", "fp-1")
	require.NoError(t, err)
	record.Query = snapshot("user-1")
	require.NoError(t, store.Save(record))

	_, err = store.Get(record.SessionID, "user-2")
	require.Error(t, err)
	var custom *utils.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Contains(t, custom.Detail, "does not belong")

	got, err := store.Get(record.SessionID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, record.SessionID, got.SessionID)
}

func TestResolveResultID(t *testing.T) {
	store := newTestStore(t, time.Hour, 200, 20)

	record, _, err := store.Begin("", "fp-1")
	require.NoError(t, err)
	record.Query = snapshot("user-1")
	record.AcceptedJobs = AttachResultIDs(record.SessionID, []models.AcceptedResult{
		{Title: "Backend Engineer", Company: "Acme", Location: "Sydney", Site: "linkedin", JobURL: "https://jobs.example/1"},
	})
	require.NoError(t, store.Save(record))

	resolved, err := store.Resolve("user-1", record.SessionID+":1")
	require.NoError(t, err)
	assert.Equal(t, "https://jobs.example/1", resolved.JobURL)
	assert.Equal(t, "Acme", resolved.Company)

	_, err = store.Resolve("user-1", record.SessionID+":99")
	require.Error(t, err)

	_, err = store.Resolve("user-1", "malformed")
	require.Error(t, err)
	var custom *utils.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Equal(t, 400, custom.Code)
}

func TestPerUserEviction(t *testing.T) {
	store := newTestStore(t, time.Hour, 200, 2)

	var ids []string
	for i := 0; i < 3; i++ {
		record, _, err := store.Begin("", fmt.Sprintf("fp-%d", i))
		require.NoError(t, err)
		record.Query = snapshot("user-1")
		require.NoError(t, store.Save(record))
		ids = append(ids, record.SessionID)
		time.Sleep(1100 * time.Millisecond)
	}

	// Oldest of the three evicted; the newer two survive.
	_, err := store.Get(ids[0], "user-1")
	require.Error(t, err)
	_, err = store.Get(ids[1], "user-1")
	require.NoError(t, err)
	_, err = store.Get(ids[2], "user-1")
	require.NoError(t, err)
}

func TestGlobalEviction(t *testing.T) {
	store := newTestStore(t, time.Hour, 2, 20)

	var ids []string
	for i := 0; i < 3; i++ {
		record, _, err := store.Begin("", fmt.Sprintf("fp-%d", i))
		require.NoError(t, err)
		record.Query = snapshot(fmt.Sprintf("user-%d", i))
		require.NoError(t, store.Save(record))
		ids = append(ids, record.SessionID)
		time.Sleep(1100 * time.Millisecond)
	}

	_, err := store.Get(ids[0], "user-0")
	require.Error(t, err)
	_, err = store.Get(ids[2], "user-2")
	require.NoError(t, err)
}

func TestExportAndDeleteUser(t *testing.T) {
	store := newTestStore(t, time.Hour, 200, 20)

	for _, user := range []string{"user-1", "user-1", "user-2"} {
		record, _, err := store.Begin("", NewSessionID())
		require.NoError(t, err)
		record.Query = snapshot(user)
		require.NoError(t, store.Save(record))
	}

	exported, err := store.ExportUser("user-1")
	require.NoError(t, err)
	assert.Len(t, exported, 2)

	removed, err := store.DeleteUser("user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	exported, err = store.ExportUser("user-1")
	require.NoError(t, err)
	assert.Empty(t, exported)

	other, err := store.ExportUser("user-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}
