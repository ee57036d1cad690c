package core

import "fmt"

type ProfileNotFoundError struct {
	ProfileID string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile %q not found", e.ProfileID)
}

type CodebaseNotAnalyzedError struct {
	RepoURL string
}

func (e *CodebaseNotAnalyzedError) Error() string {
	return fmt.Sprintf("no codebase analysis found for %s", e.RepoURL)
}

type PlanNotFoundError struct {
	PlanID string
}

func (e *PlanNotFoundError) Error() string {
	return fmt.Sprintf("study plan %q not found", e.PlanID)
}

// ValidationError is a caller mistake in request parameters.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
