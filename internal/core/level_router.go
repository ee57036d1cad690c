package core

import (
	"sort"

	"gwi.com/onboarding-backend/internal/store"
)

const (
	LevelJunior = "junior"
	LevelSenior = "senior"

	DefaultSeniorYears = 3
)

// LevelThreshold assigns Level to candidates with at least MinYears of experience.
type LevelThreshold struct {
	Level    string
	MinYears float64
}

// LevelRouter is the single place that maps declared experience to a level tag.
type LevelRouter struct {
	thresholds []LevelThreshold // descending MinYears
}

// NewLevelRouter routes to senior at seniorYears and to junior below it. Extra thresholds add
// levels or override the built-in ones by name.
func NewLevelRouter(seniorYears float64, extra ...LevelThreshold) *LevelRouter {
	byLevel := map[string]float64{
		LevelJunior: 0,
		LevelSenior: seniorYears,
	}
	for _, t := range extra {
		byLevel[t.Level] = t.MinYears
	}

	thresholds := make([]LevelThreshold, 0, len(byLevel))
	for level, min := range byLevel {
		thresholds = append(thresholds, LevelThreshold{Level: level, MinYears: min})
	}
	sort.Slice(thresholds, func(i, j int) bool {
		if thresholds[i].MinYears != thresholds[j].MinYears {
			return thresholds[i].MinYears > thresholds[j].MinYears
		}
		return thresholds[i].Level < thresholds[j].Level
	})
	return &LevelRouter{thresholds: thresholds}
}

// Route returns the level tag for profile. Missing, unreadable or negative experience counts
// as zero years.
func (r *LevelRouter) Route(profile store.CandidateProfile) string {
	return r.RouteYears(ExperienceYears(profile))
}

func (r *LevelRouter) RouteYears(years float64) string {
	for _, t := range r.thresholds {
		if years >= t.MinYears {
			return t.Level
		}
	}
	// Every threshold is above zero only when junior was overridden upwards.
	return r.thresholds[len(r.thresholds)-1].Level
}

// Levels lists the known level tags from most to least experienced.
func (r *LevelRouter) Levels() []string {
	out := make([]string, len(r.thresholds))
	for i, t := range r.thresholds {
		out[i] = t.Level
	}
	return out
}

func ExperienceYears(profile store.CandidateProfile) float64 {
	years, ok := profile.Analysis.ExperienceYears.Value()
	if !ok || years < 0 {
		return 0
	}
	return years
}
