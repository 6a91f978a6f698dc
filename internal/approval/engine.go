// Package approval derives progress and production readiness from an SRD's
// department status map. All functions are pure: callers inject the registry
// view and persist the results themselves.
package approval

import (
	"fmt"
	"math"
	"sort"

	"github.com/example/srdflow/internal/models"
)

// Result is the derived pair recomputed after every status-map mutation.
type Result struct {
	Progress           int  `json:"progress"`
	ReadyForProduction bool `json:"readyForProduction"`
}

// Recompute derives progress and readiness over participating departments
// only. Departments present in the status map but absent from the
// participating list are ignored; a map with no relevant entries yields zero
// progress and not-ready.
func Recompute(status models.StatusMap, participating []string) Result {
	relevant := 0
	approved := 0
	for _, slug := range participating {
		st, ok := status[slug]
		if !ok {
			continue
		}
		relevant++
		if st == models.DeptStatusApproved {
			approved++
		}
	}
	if relevant == 0 {
		return Result{}
	}
	return Result{
		Progress:           int(math.Round(100 * float64(approved) / float64(relevant))),
		ReadyForProduction: approved == relevant,
	}
}

// IssueType classifies one consistency problem found by Diagnose.
type IssueType string

const (
	IssueExcludedRolePresent IssueType = "excluded_role_present"
	IssueMissingDepartment   IssueType = "missing_department"
	IssueProgressMismatch    IssueType = "progress_mismatch"
	IssueReadinessMismatch   IssueType = "readiness_mismatch"
)

// Issue is one detected inconsistency plus the action that would clear it.
type Issue struct {
	Type           IssueType `json:"type"`
	Message        string    `json:"message"`
	Recommendation string    `json:"recommendation"`
}

// Report is the read-only output of Diagnose.
type Report struct {
	Consistent bool    `json:"consistent"`
	Issues     []Issue `json:"issues"`
	Expected   Result  `json:"expected"`
}

// Diagnose checks an SRD's status map against the registry without mutating
// anything: excluded roles present as keys, participating departments missing,
// and stored progress/readiness disagreeing with the recomputed values.
func Diagnose(srd *models.SRD, participating, excluded []string) Report {
	var issues []Issue

	for _, slug := range excluded {
		if _, ok := srd.Status[slug]; ok {
			issues = append(issues, Issue{
				Type:           IssueExcludedRolePresent,
				Message:        fmt.Sprintf("administrative role %q appears in the status map", slug),
				Recommendation: fmt.Sprintf("remove %q from the status map", slug),
			})
		}
	}
	for _, slug := range participating {
		if _, ok := srd.Status[slug]; !ok {
			issues = append(issues, Issue{
				Type:           IssueMissingDepartment,
				Message:        fmt.Sprintf("participating department %q is missing from the status map", slug),
				Recommendation: fmt.Sprintf("seed %q as pending", slug),
			})
		}
	}

	expected := Recompute(srd.Status, participating)
	if srd.Progress != expected.Progress {
		issues = append(issues, Issue{
			Type:           IssueProgressMismatch,
			Message:        fmt.Sprintf("stored progress %d, expected %d", srd.Progress, expected.Progress),
			Recommendation: "recompute and persist progress",
		})
	}
	if srd.ReadyForProduction != expected.ReadyForProduction {
		issues = append(issues, Issue{
			Type:           IssueReadinessMismatch,
			Message:        fmt.Sprintf("stored readyForProduction %v, expected %v", srd.ReadyForProduction, expected.ReadyForProduction),
			Recommendation: "recompute and persist readiness",
		})
	}

	return Report{Consistent: len(issues) == 0, Issues: issues, Expected: expected}
}

// AutoFix deterministically repairs the status map: excluded-role keys are
// purged, missing participating departments are seeded as pending, and the
// derived pair is recomputed. Returns a human-readable change list; running
// it again immediately yields an empty list.
func AutoFix(srd *models.SRD, participating, excluded []string) []string {
	var changes []string

	if srd.Status == nil {
		srd.Status = models.StatusMap{}
	}
	for _, slug := range excluded {
		if _, ok := srd.Status[slug]; ok {
			delete(srd.Status, slug)
			changes = append(changes, fmt.Sprintf("removed excluded role %q", slug))
		}
	}
	missing := make([]string, 0)
	for _, slug := range participating {
		if _, ok := srd.Status[slug]; !ok {
			missing = append(missing, slug)
		}
	}
	sort.Strings(missing)
	for _, slug := range missing {
		srd.Status[slug] = models.DeptStatusPending
		changes = append(changes, fmt.Sprintf("seeded %q as pending", slug))
	}

	res := Recompute(srd.Status, participating)
	if srd.Progress != res.Progress {
		changes = append(changes, fmt.Sprintf("progress corrected from %d to %d", srd.Progress, res.Progress))
	}
	if srd.ReadyForProduction != res.ReadyForProduction {
		changes = append(changes, fmt.Sprintf("readyForProduction corrected from %v to %v", srd.ReadyForProduction, res.ReadyForProduction))
	}
	srd.Progress = res.Progress
	srd.ReadyForProduction = res.ReadyForProduction

	return changes
}
