package store

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type CandidateProfile struct {
	ProfileID      string         `json:"profile_id"`
	ContentHash    string         `json:"content_hash"`
	UploadedAt     time.Time      `json:"uploaded_at"`
	SourceFilename string         `json:"source_filename"`
	CandidateEmail string         `json:"candidate_email,omitempty"`
	Analysis       ResumeAnalysis `json:"analysis"`
}

type ResumeAnalysis struct {
	CandidateName           string          `json:"candidate_name"`
	ExperienceYears         Years           `json:"experience_years"`
	Education               []string        `json:"education"`
	TechnicalSkills         TechnicalSkills `json:"technical_skills"`
	ExperienceSummary       []string        `json:"experience_summary"`
	Strengths               []string        `json:"strengths"`
	KnowledgeGaps           []string        `json:"knowledge_gaps"`
	RecommendedLearningPath []string        `json:"recommended_learning_path"`
	Warning                 string          `json:"warning,omitempty"`
}

type TechnicalSkills struct {
	Languages  []string `json:"languages"`
	Frameworks []string `json:"frameworks"`
	Tools      []string `json:"tools"`
	Databases  []string `json:"databases"`
}

// Normalize replaces nil slices with empty ones so stored documents always carry every field.
func (a *ResumeAnalysis) Normalize() {
	for _, s := range []*[]string{
		&a.Education, &a.ExperienceSummary, &a.Strengths, &a.KnowledgeGaps, &a.RecommendedLearningPath,
		&a.TechnicalSkills.Languages, &a.TechnicalSkills.Frameworks, &a.TechnicalSkills.Tools, &a.TechnicalSkills.Databases,
	} {
		if *s == nil {
			*s = []string{}
		}
	}
}

// Years is a declared amount of experience. Generators return it as a number, a numeric
// string or free text such as "5+ years"; the raw form is kept and interpreted on demand.
type Years struct {
	raw string
}

func YearsOf(v float64) Years {
	return Years{raw: strconv.FormatFloat(v, 'f', -1, 64)}
}

func YearsText(s string) Years {
	return Years{raw: strings.TrimSpace(s)}
}

var firstNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Value returns the number of years, or false when none can be read.
func (y Years) Value() (float64, bool) {
	if y.raw == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(y.raw, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	m := firstNumber.FindString(y.raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (y Years) String() string { return y.raw }

func (y Years) MarshalJSON() ([]byte, error) {
	if y.raw == "" {
		return []byte("null"), nil
	}
	if v, err := strconv.ParseFloat(y.raw, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
	}
	return json.Marshal(y.raw)
}

func (y *Years) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		y.raw = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		y.raw = strings.TrimSpace(s)
		return nil
	default:
		// Anything that is not a number (bool, object) reads as unknown.
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			y.raw = ""
			return nil
		}
		y.raw = n.String()
		return nil
	}
}

type CodebaseAnalysis struct {
	AnalysisID       string                     `json:"analysis_id"`
	RepoURL          string                     `json:"repo_url"`
	RepoName         string                     `json:"repo_name"`
	AnalyzedAt       time.Time                  `json:"analyzed_at"`
	ExperienceLevels []string                   `json:"experience_levels"`
	Variants         map[string]CodebaseVariant `json:"variants"`
	Metadata         AnalysisMetadata           `json:"metadata"`
}

type AnalysisMetadata struct {
	AnalysisVersion string            `json:"analysis_version"`
	GenerationModes map[string]string `json:"generation_modes"`
	Model           string            `json:"model,omitempty"`
	Source          *SourceInfo       `json:"source,omitempty"`
}

// SourceInfo describes the repository checkout an analysis was generated from.
type SourceInfo struct {
	Commit        string   `json:"commit,omitempty"`
	FilesAnalyzed int      `json:"files_analyzed"`
	FilesSkipped  int      `json:"files_skipped"`
	KeyFiles      []string `json:"key_files"`
	Error         string   `json:"error,omitempty"`
}

type CodebaseVariant struct {
	Summary        CodebaseSummary `json:"summary"`
	Chapters       []Chapter       `json:"chapters"`
	Curriculum     Curriculum      `json:"curriculum"`
	KnowledgeGraph KnowledgeGraph  `json:"knowledge_graph"`
	GenerationMode string          `json:"generation_mode"`
	Warning        string          `json:"warning,omitempty"`
}

type CodebaseSummary struct {
	Overview        string   `json:"overview"`
	Purpose         string   `json:"purpose"`
	KeyComponents   []string `json:"key_components"`
	Technologies    []string `json:"technologies"`
	DifficultyLevel string   `json:"difficulty_level"`
}

type Chapter struct {
	Title    string    `json:"title"`
	Order    int       `json:"order"`
	Content  string    `json:"content"`
	Sections []Section `json:"sections"`
}

type Section struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

type Curriculum struct {
	Weeks []CurriculumWeek `json:"weeks"`
}

type CurriculumWeek struct {
	Week  int      `json:"week"`
	Title string   `json:"title"`
	Goals []string `json:"goals"`
}

type KnowledgeGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type GraphNode struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	FilePath string `json:"file_path,omitempty"`
}

type GraphEdge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship"`
}

// AnalysisSummary is the listing form of a CodebaseAnalysis.
type AnalysisSummary struct {
	AnalysisID       string         `json:"analysis_id"`
	RepoURL          string         `json:"repo_url"`
	RepoName         string         `json:"repo_name"`
	AnalyzedAt       time.Time      `json:"analyzed_at"`
	ExperienceLevels []string       `json:"experience_levels"`
	ChapterCounts    map[string]int `json:"chapter_counts"`
}

func (a CodebaseAnalysis) Summary() AnalysisSummary {
	counts := make(map[string]int, len(a.Variants))
	for level, v := range a.Variants {
		counts[level] = len(v.Chapters)
	}
	return AnalysisSummary{
		AnalysisID:       a.AnalysisID,
		RepoURL:          a.RepoURL,
		RepoName:         a.RepoName,
		AnalyzedAt:       a.AnalyzedAt,
		ExperienceLevels: a.ExperienceLevels,
		ChapterCounts:    counts,
	}
}

type StudyPlan struct {
	PlanID          string    `json:"plan_id"`
	ProfileID       string    `json:"profile_id"`
	RepoURL         string    `json:"repo_url"`
	AnalysisID      string    `json:"analysis_id"`
	ExperienceLevel string    `json:"experience_level"`
	VariantLevel    string    `json:"variant_level"`
	DurationWeeks   int       `json:"duration_weeks"`
	RequestedWeeks  int       `json:"requested_weeks"`
	GenerationMode  string    `json:"generation_mode"`
	GeneratedAt     time.Time `json:"generated_at"`
	Weeks           []Week    `json:"weeks"`
}

type Week struct {
	WeekID   int            `json:"weekId"`
	Title    string         `json:"title"`
	Status   string         `json:"status"`
	Overview string         `json:"overview"`
	Chapters []PlanChapter  `json:"chapters"`
	Tasks    []Task         `json:"tasks"`
	Quiz     []QuizQuestion `json:"quiz"`
}

type PlanChapter struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	SubItems []SubItem `json:"subItems"`
}

type SubItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedBy  string `json:"assignedBy"`
	Progress    int    `json:"progress"`
}

type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer"`
}
