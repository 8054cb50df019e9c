package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefsSetVisaTypesNormalizes(t *testing.T) {
	prefs := NewPrefsStore(filepath.Join(t.TempDir(), "prefs.json"))

	saved, err := prefs.SetVisaTypes("user-1", []string{"E-3", "h1b", "PERM", "e3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e3_australian", "green_card", "h1b"}, saved.PreferredVisaTypes)

	got, ok, err := prefs.Get("user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, saved.PreferredVisaTypes, got.PreferredVisaTypes)
}

func TestPrefsUnknownVisaTypeRejected(t *testing.T) {
	prefs := NewPrefsStore(filepath.Join(t.TempDir(), "prefs.json"))

	_, err := prefs.SetVisaTypes("user-1", []string{"o1"})
	require.Error(t, err)

	_, ok, err := prefs.Get("user-1")
	require.NoError(t, err)
	assert.False(t, ok, "failed set leaves nothing behind")
}

func TestPrefsConstraintsMerge(t *testing.T) {
	prefs := NewPrefsStore(filepath.Join(t.TempDir(), "prefs.json"))
	_, err := prefs.SetVisaTypes("user-1", []string{"h1b"})
	require.NoError(t, err)

	days := 120
	constraints, err := prefs.SetConstraints("user-1", &days, []string{"Remote", "hybrid"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hybrid", "remote"}, constraints.WorkModes)

	// A later call touching one field keeps the others.
	relocate := true
	constraints, err = prefs.SetConstraints("user-1", nil, nil, &relocate)
	require.NoError(t, err)
	require.NotNil(t, constraints.DaysRemaining)
	assert.Equal(t, 120, *constraints.DaysRemaining)
	assert.Equal(t, []string{"hybrid", "remote"}, constraints.WorkModes)
	require.NotNil(t, constraints.WillingToRelocate)
	assert.True(t, *constraints.WillingToRelocate)

	got, _, err := prefs.Get("user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"h1b"}, got.PreferredVisaTypes, "visa types survive constraint writes")
}

func TestPrefsBadWorkMode(t *testing.T) {
	prefs := NewPrefsStore(filepath.Join(t.TempDir(), "prefs.json"))
	_, err := prefs.SetConstraints("user-1", nil, []string{"commute"}, nil)
	require.Error(t, err)
}

func TestSavedUpsertByURL(t *testing.T) {
	saved := NewSavedStore(filepath.Join(t.TempDir(), "saved.json"))

	first, existed, err := saved.Upsert("user-1", SavedJob{
		JobURL:  "https://jobs.example/1",
		Title:   "Backend Engineer",
		Company: "Acme",
	})
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, 1, first.ID)
	assert.NotEmpty(t, first.SavedAt)

	// Same URL updates in place instead of duplicating; empty incoming
	// fields keep the stored value.
	second, existed, err := saved.Upsert("user-1", SavedJob{
		JobURL: "https://jobs.example/1",
		Note:   "follow up Friday",
	})
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 1, second.ID)
	assert.Equal(t, "Backend Engineer", second.Title)
	assert.Equal(t, "follow up Friday", second.Note)

	jobs, total, err := saved.List("user-1", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, jobs, 1)
}

func TestSavedListNewestFirstAndPaged(t *testing.T) {
	saved := NewSavedStore(filepath.Join(t.TempDir(), "saved.json"))
	for _, url := range []string{"https://a", "https://b", "https://c"} {
		_, _, err := saved.Upsert("user-1", SavedJob{JobURL: url})
		require.NoError(t, err)
	}

	jobs, total, err := saved.List("user-1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, jobs, 2)
	assert.Equal(t, 3, jobs[0].ID)
	assert.Equal(t, 2, jobs[1].ID)

	jobs, _, err = saved.List("user-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].ID)
}

func TestSavedDelete(t *testing.T) {
	saved := NewSavedStore(filepath.Join(t.TempDir(), "saved.json"))
	job, _, err := saved.Upsert("user-1", SavedJob{JobURL: "https://jobs.example/1"})
	require.NoError(t, err)

	require.NoError(t, saved.Delete("user-1", job.ID))
	require.Error(t, saved.Delete("user-1", job.ID))

	// Freed ids are not reused.
	next, _, err := saved.Upsert("user-1", SavedJob{JobURL: "https://jobs.example/2"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.ID)
}

func TestIgnoredURLSet(t *testing.T) {
	ignored := NewIgnoredStore(filepath.Join(t.TempDir(), "ignored.json"))
	_, _, err := ignored.Upsert("user-1", IgnoredJob{
		JobURL: "https://jobs.example/SHOUTY",
		Reason: "already rejected once",
	})
	require.NoError(t, err)

	set, err := ignored.URLSet("user-1")
	require.NoError(t, err)
	_, ok := set["https://jobs.example/shouty"]
	assert.True(t, ok, "lookup keys are lowercased")

	other, err := ignored.URLSet("user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestIgnoredUpsertAndUnignore(t *testing.T) {
	ignored := NewIgnoredStore(filepath.Join(t.TempDir(), "ignored.json"))

	first, existed, err := ignored.Upsert("user-1", IgnoredJob{JobURL: "https://jobs.example/1", Reason: "spam"})
	require.NoError(t, err)
	assert.False(t, existed)

	again, existed, err := ignored.Upsert("user-1", IgnoredJob{JobURL: "https://jobs.example/1", Reason: "definitely spam"})
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "definitely spam", again.Reason)

	require.NoError(t, ignored.Delete("user-1", first.ID))
	set, err := ignored.URLSet("user-1")
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestDeleteUserAcrossStores(t *testing.T) {
	dir := t.TempDir()
	prefs := NewPrefsStore(filepath.Join(dir, "prefs.json"))
	saved := NewSavedStore(filepath.Join(dir, "saved.json"))
	ignored := NewIgnoredStore(filepath.Join(dir, "ignored.json"))

	_, err := prefs.SetVisaTypes("user-1", []string{"h1b"})
	require.NoError(t, err)
	_, _, err = saved.Upsert("user-1", SavedJob{JobURL: "https://a"})
	require.NoError(t, err)
	_, _, err = ignored.Upsert("user-1", IgnoredJob{JobURL: "https://b"})
	require.NoError(t, err)

	removed, err := prefs.DeleteUser("user-1")
	require.NoError(t, err)
	assert.True(t, removed)

	savedRemoved, err := saved.DeleteUser("user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, savedRemoved)

	ignoredRemoved, err := ignored.DeleteUser("user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, ignoredRemoved)

	_, ok, err := prefs.Get("user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
