package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gwi.com/onboarding-backend/internal/store"
)

func profileWithYears(y store.Years) store.CandidateProfile {
	return store.CandidateProfile{Analysis: store.ResumeAnalysis{ExperienceYears: y}}
}

func TestRouteBoundaries(t *testing.T) {
	r := NewLevelRouter(DefaultSeniorYears)
	tests := []struct {
		name  string
		years store.Years
		want  string
	}{
		{"zero", store.YearsOf(0), LevelJunior},
		{"one", store.YearsOf(1), LevelJunior},
		{"two", store.YearsOf(2), LevelJunior},
		{"just below", store.YearsOf(2.9), LevelJunior},
		{"threshold", store.YearsOf(3), LevelSenior},
		{"just above", store.YearsOf(3.1), LevelSenior},
		{"ten", store.YearsOf(10), LevelSenior},
		{"missing", store.Years{}, LevelJunior},
		{"numeric string", store.YearsText("4"), LevelSenior},
		{"free text", store.YearsText("5+ years"), LevelSenior},
		{"unparseable", store.YearsText("several"), LevelJunior},
		{"negative", store.YearsText("-7"), LevelJunior},
		{"negative text", store.YearsText("-7 years"), LevelJunior},
		{"range", store.YearsText("3-5 years"), LevelSenior},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Route(profileWithYears(tt.years)))
		})
	}
}

func TestRouteConfigurableThreshold(t *testing.T) {
	r := NewLevelRouter(5)
	assert.Equal(t, LevelJunior, r.RouteYears(4.5))
	assert.Equal(t, LevelSenior, r.RouteYears(5))
}

func TestRouteExtraLevels(t *testing.T) {
	r := NewLevelRouter(3, LevelThreshold{Level: "staff", MinYears: 8})
	assert.Equal(t, []string{"staff", LevelSenior, LevelJunior}, r.Levels())
	assert.Equal(t, "staff", r.RouteYears(12))
	assert.Equal(t, LevelSenior, r.RouteYears(7.9))
	assert.Equal(t, LevelJunior, r.RouteYears(0))
}

func TestExperienceYears(t *testing.T) {
	assert.Equal(t, 0.0, ExperienceYears(profileWithYears(store.Years{})))
	assert.Equal(t, 0.0, ExperienceYears(profileWithYears(store.YearsOf(-2))))
	assert.Equal(t, 6.5, ExperienceYears(profileWithYears(store.YearsText("about 6.5 years"))))
}
