package service

import (
	"fmt"

	"visascout/internal/runs"
	"visascout/internal/session"
	"visascout/internal/store"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// SetVisaPreferences stores a user's preferred visa types in canonical form
func (s *Service) SetVisaPreferences(userID string, visaTypes []string) (*store.Preferences, error) {
	return s.prefs.SetVisaTypes(userID, visaTypes)
}

// SetConstraints merges optional onboarding constraints into the profile
func (s *Service) SetConstraints(userID string, daysRemaining *int, workModes []string, willingToRelocate *bool) (*store.Constraints, error) {
	return s.prefs.SetConstraints(userID, daysRemaining, workModes, willingToRelocate)
}

// GetPreferences returns a user's stored profile and whether one exists
func (s *Service) GetPreferences(userID string) (*store.Preferences, bool, error) {
	return s.prefs.Get(userID)
}

// ReadinessReport summarizes whether a user is set up to search and where
// their pipeline stands.
type ReadinessReport struct {
	UserID             string                  `json:"user_id"`
	ReadyForSearch     bool                    `json:"ready_for_search"`
	HasPreferences     bool                    `json:"has_preferences"`
	PreferredVisaTypes []string                `json:"preferred_visa_types"`
	StageCounts        map[string]int          `json:"stage_counts"`
	SavedJobs          int                     `json:"saved_jobs"`
	IgnoredJobs        int                     `json:"ignored_jobs"`
	ActiveRuns         int                     `json:"active_runs"`
	Dataset            models.DatasetFreshness `json:"dataset"`
	ActionItems        []string                `json:"action_items"`
}

// Readiness builds the onboarding and pipeline overview for one user
func (s *Service) Readiness(userID string) (*ReadinessReport, error) {
	prefs, hasPrefs, err := s.prefs.Get(userID)
	if err != nil {
		return nil, err
	}
	stageCounts, err := s.jobs.StageSummary(userID)
	if err != nil {
		return nil, err
	}
	_, savedCount, err := s.saved.List(userID, 0, 0)
	if err != nil {
		return nil, err
	}
	_, ignoredCount, err := s.ignored.List(userID, 0, 0)
	if err != nil {
		return nil, err
	}
	userRuns, err := s.runs.ExportUser(userID)
	if err != nil {
		return nil, err
	}
	activeRuns := 0
	for _, run := range userRuns {
		if !run.Status.IsTerminal() {
			activeRuns++
		}
	}

	report := &ReadinessReport{
		UserID:             userID,
		ReadyForSearch:     hasPrefs && len(prefs.PreferredVisaTypes) > 0,
		HasPreferences:     hasPrefs,
		PreferredVisaTypes: prefs.PreferredVisaTypes,
		StageCounts:        stageCounts,
		SavedJobs:          savedCount,
		IgnoredJobs:        ignoredCount,
		ActiveRuns:         activeRuns,
		Dataset:            s.datasets.Freshness(s.cfg.Dataset.Path, s.cfg.Dataset.StaleAfterDays),
	}
	if !report.ReadyForSearch {
		report.ActionItems = append(report.ActionItems, "Set preferred visa types with set_user_visa_preferences before searching.")
	}
	if report.Dataset.ModifiedAt == "" {
		report.ActionItems = append(report.ActionItems, fmt.Sprintf("Sponsor dataset not found at '%s'; provide one before searching.", report.Dataset.DatasetPath))
	} else if report.Dataset.Stale {
		report.ActionItems = append(report.ActionItems, fmt.Sprintf("Sponsor dataset is %d days old; refresh it for current filing data.", report.Dataset.AgeDays))
	}
	return report, nil
}

// UserExport bundles everything stored about one user
type UserExport struct {
	UserID      string               `json:"user_id"`
	ExportedAt  string               `json:"exported_at_utc"`
	Preferences *store.Preferences   `json:"preferences,omitempty"`
	SavedJobs   []store.SavedJob     `json:"saved_jobs"`
	IgnoredJobs []store.IgnoredJob   `json:"ignored_jobs"`
	TrackedJobs []models.TrackedJob  `json:"tracked_jobs"`
	Apps        []models.Application `json:"applications"`
	JobEvents   []models.JobEvent    `json:"job_events"`
	Sessions    []*session.Record    `json:"search_sessions"`
	Runs        []*runs.Run          `json:"search_runs"`
}

// ExportUserData collects one user's data from every store
func (s *Service) ExportUserData(userID string) (*UserExport, error) {
	export := &UserExport{
		UserID:     userID,
		ExportedAt: utils.ToISO(utils.UTCNow()),
	}

	prefs, hasPrefs, err := s.prefs.Get(userID)
	if err != nil {
		return nil, err
	}
	if hasPrefs {
		export.Preferences = prefs
	}
	if export.SavedJobs, err = s.saved.ExportUser(userID); err != nil {
		return nil, err
	}
	if export.IgnoredJobs, err = s.ignored.ExportUser(userID); err != nil {
		return nil, err
	}
	if export.TrackedJobs, export.Apps, export.JobEvents, err = s.jobs.ExportUser(userID); err != nil {
		return nil, err
	}
	if export.Sessions, err = s.sessions.ExportUser(userID); err != nil {
		return nil, err
	}
	if export.Runs, err = s.runs.ExportUser(userID); err != nil {
		return nil, err
	}
	return export, nil
}

// DeleteSummary reports what a full user deletion removed
type DeleteSummary struct {
	UserID             string `json:"user_id"`
	PreferencesDeleted bool   `json:"preferences_deleted"`
	SavedJobsDeleted   int    `json:"saved_jobs_deleted"`
	IgnoredJobsDeleted int    `json:"ignored_jobs_deleted"`
	TrackedJobsDeleted int64  `json:"tracked_jobs_deleted"`
	SessionsDeleted    int    `json:"sessions_deleted"`
	RunsDeleted        int    `json:"runs_deleted"`
}

// DeleteUserData removes everything stored about one user. The confirm
// flag guards against accidental calls; deletion is unrecoverable.
func (s *Service) DeleteUserData(userID string, confirm bool) (*DeleteSummary, error) {
	if !confirm {
		return nil, utils.NewBadRequestError("deletion is permanent; pass confirm=true to proceed")
	}

	summary := &DeleteSummary{UserID: userID}
	var err error
	if summary.PreferencesDeleted, err = s.prefs.DeleteUser(userID); err != nil {
		return nil, err
	}
	if summary.SavedJobsDeleted, err = s.saved.DeleteUser(userID); err != nil {
		return nil, err
	}
	if summary.IgnoredJobsDeleted, err = s.ignored.DeleteUser(userID); err != nil {
		return nil, err
	}
	if summary.TrackedJobsDeleted, err = s.jobs.DeleteUser(userID); err != nil {
		return nil, err
	}
	if summary.SessionsDeleted, err = s.sessions.DeleteUser(userID); err != nil {
		return nil, err
	}
	if summary.RunsDeleted, err = s.runs.DeleteUser(userID); err != nil {
		return nil, err
	}
	s.log.Info("Deleted all user data", map[string]interface{}{"user_id": userID})
	return summary, nil
}

// MigrateLegacyJobs imports the JSON saved and ignored lists into the
// lifecycle database once at startup.
func (s *Service) MigrateLegacyJobs() error {
	counts, err := s.jobs.MigrateLegacy(s.saved, s.ignored)
	if err != nil {
		return err
	}
	if counts.SavedMigrated > 0 || counts.IgnoredMigrated > 0 {
		s.log.Info("Migrated legacy job lists", map[string]interface{}{
			"saved_migrated":   counts.SavedMigrated,
			"ignored_migrated": counts.IgnoredMigrated,
		})
	}
	return nil
}
