package core

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gwi.com/onboarding-backend/internal/store"
)

const (
	GenerationModeGenerated = "generated"
	GenerationModeFallback  = "fallback"

	WeekStatusStart  = "start"
	WeekStatusLocked = "locked"

	onboardingTeam = "Onboarding Team"
)

type skillPattern struct {
	name    string
	pattern *regexp.Regexp
}

func skills(caseSensitive bool, names ...string) []skillPattern {
	out := make([]skillPattern, 0, len(names))
	for _, n := range names {
		expr := `(^|[^\w+#])` + regexp.QuoteMeta(n) + `($|[^\w+#])`
		if !caseSensitive {
			expr = `(?i)` + expr
		}
		out = append(out, skillPattern{name: n, pattern: regexp.MustCompile(expr)})
	}
	return out
}

var (
	languageSkills = append(
		skills(true, "Go", "Golang"),
		skills(false, "Python", "Java", "JavaScript", "TypeScript", "Rust", "C++", "C#", "Ruby", "Kotlin", "Swift", "PHP", "Scala")...)
	frameworkSkills = skills(false, "React", "Angular", "Vue", "Django", "Flask", "FastAPI", "Spring", "Express", "Rails", "Next.js", "gRPC")
	toolSkills      = skills(false, "Docker", "Kubernetes", "Terraform", "Git", "Jenkins", "AWS", "GCP", "Azure", "Kafka", "RabbitMQ")
	databaseSkills  = skills(false, "PostgreSQL", "MySQL", "MongoDB", "Redis", "SQLite", "Elasticsearch", "DynamoDB", "Cassandra")

	yearsMention  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*\+?\s*(?:years|yrs)`)
	educationLine = regexp.MustCompile(`(?i)\b(university|college|institute|bachelor|master|ph\.?d|b\.?sc|m\.?sc)\b`)
	hasLetter     = regexp.MustCompile(`\pL`)
)

func matchSkills(text string, patterns []skillPattern) []string {
	found := []string{}
	for _, p := range patterns {
		if p.pattern.MatchString(text) {
			found = append(found, p.name)
		}
	}
	return found
}

// mockAnalysis builds a keyword-based analysis used when the provider fails. Every field is
// present and Warning says why.
func mockAnalysis(text, reason string) store.ResumeAnalysis {
	name := "Unknown Candidate"
	var education []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if name == "Unknown Candidate" && len(line) <= 60 && hasLetter.MatchString(line) {
			name = line
		}
		if educationLine.MatchString(line) && len(education) < 3 {
			education = append(education, line)
		}
	}

	years := 0.0
	for _, m := range yearsMention.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > years && v < 60 {
			years = v
		}
	}

	a := store.ResumeAnalysis{
		CandidateName:   name,
		ExperienceYears: store.YearsOf(years),
		Education:       education,
		TechnicalSkills: store.TechnicalSkills{
			Languages:  matchSkills(text, languageSkills),
			Frameworks: matchSkills(text, frameworkSkills),
			Tools:      matchSkills(text, toolSkills),
			Databases:  matchSkills(text, databaseSkills),
		},
		ExperienceSummary: []string{"Automated analysis unavailable; summary not generated."},
		KnowledgeGaps: []string{
			"Codebase architecture and conventions",
			"Team development workflow",
			"Testing and release practices",
		},
		RecommendedLearningPath: []string{
			"Set up the development environment",
			"Read the codebase overview",
			"Pair with a mentor on a first task",
		},
		Warning: fmt.Sprintf("AI analysis unavailable (%s); fields were filled from keyword matching and should be reviewed.", reason),
	}
	for _, s := range append(a.TechnicalSkills.Languages, a.TechnicalSkills.Databases...) {
		if len(a.Strengths) == 3 {
			break
		}
		a.Strengths = append(a.Strengths, "Experience with "+s)
	}
	a.Normalize()
	return a
}

type placeholderChapter struct {
	title    string
	content  string
	sections [][2]string
}

var placeholderChapters = map[string][]placeholderChapter{
	LevelJunior: {
		{"Getting Started", "Introduction to the codebase and how to run it locally.", [][2]string{
			{"Setup", "How to set up the development environment."},
			{"Running the Tests", "How to run the test suite and read its output."},
		}},
		{"Project Layout", "How the repository is organised and how a request flows through it.", [][2]string{
			{"Directory Structure", "The main directories and what lives in each."},
			{"Request Flow", "The path a typical request takes through the main components."},
		}},
		{"Your First Contribution", "Small, safe changes that make good first tasks.", [][2]string{
			{"Good First Issues", "How to find and pick a starter task."},
			{"Code Review", "What reviewers look for and how to respond to feedback."},
		}},
	},
	LevelSenior: {
		{"Architecture Overview", "The main design decisions and the boundaries between modules.", [][2]string{
			{"Module Boundaries", "Which modules own which responsibilities."},
			{"Data Flow", "How data moves between services and storage."},
		}},
		{"Operations and Failure Modes", "How the system is deployed, observed and recovered.", [][2]string{
			{"Deployment", "How releases reach production."},
			{"Observability", "Logs, metrics and alerts worth knowing first."},
		}},
		{"Ownership Areas", "High-impact areas where an experienced engineer can take ownership.", [][2]string{
			{"High-impact Areas", "Components with the most leverage on reliability and speed."},
			{"Technical Debt", "Known debt and the plans to pay it down."},
		}},
	},
}

// placeholderVariant is the deterministic variant stored for a level whose generation failed.
func placeholderVariant(repoName, level, reason string) store.CodebaseVariant {
	chapters, ok := placeholderChapters[level]
	if !ok {
		chapters = placeholderChapters[LevelJunior]
	}
	difficulty := "intermediate"
	switch level {
	case LevelJunior:
		difficulty = "beginner"
	case LevelSenior:
		difficulty = "advanced"
	}

	v := store.CodebaseVariant{
		Summary: store.CodebaseSummary{
			Overview:        fmt.Sprintf("Placeholder onboarding guide for %s (%s level).", repoName, level),
			Purpose:         "Generated without the AI provider; re-run the analysis for repository-specific content.",
			KeyComponents:   []string{"Main application logic", "API endpoints", "Data models", "Utility functions"},
			Technologies:    []string{},
			DifficultyLevel: difficulty,
		},
		KnowledgeGraph: store.KnowledgeGraph{
			Nodes: []store.GraphNode{
				{ID: "main_app", Label: "Main Application", Type: "module"},
				{ID: "api_routes", Label: "API Routes", Type: "module"},
				{ID: "models", Label: "Data Models", Type: "module"},
			},
			Edges: []store.GraphEdge{
				{Source: "main_app", Target: "api_routes", Relationship: "imports"},
				{Source: "api_routes", Target: "models", Relationship: "uses"},
			},
		},
		GenerationMode: GenerationModeFallback,
		Warning:        fmt.Sprintf("AI analysis unavailable for level %q: %s", level, reason),
	}
	for i, pc := range chapters {
		ch := store.Chapter{Title: pc.title, Order: i + 1, Content: pc.content}
		goals := make([]string, 0, len(pc.sections))
		for _, s := range pc.sections {
			ch.Sections = append(ch.Sections, store.Section{Heading: s[0], Content: s[1]})
			goals = append(goals, s[1])
		}
		v.Chapters = append(v.Chapters, ch)
		v.Curriculum.Weeks = append(v.Curriculum.Weeks, store.CurriculumWeek{Week: i + 1, Title: pc.title, Goals: goals})
	}
	return v
}

var (
	errNoChapters = errors.New("variant has no chapters")
	errNoOverview = errors.New("variant summary has no overview")

	errNoCandidateName = errors.New("resume analysis has no candidate name")
	errNoExperience    = errors.New("resume analysis has no experience, skills or summary")
)

// validateAnalysis rejects generated analyses that do not describe a candidate and clears the
// generator-controlled warning.
func validateAnalysis(a *store.ResumeAnalysis) error {
	if strings.TrimSpace(a.CandidateName) == "" {
		return errNoCandidateName
	}
	_, hasYears := a.ExperienceYears.Value()
	sk := a.TechnicalSkills
	if !hasYears && !anyText(sk.Languages, sk.Frameworks, sk.Tools, sk.Databases, a.ExperienceSummary, a.Strengths) {
		return errNoExperience
	}
	a.Warning = ""
	a.Normalize()
	return nil
}

func anyText(lists ...[]string) bool {
	for _, l := range lists {
		for _, s := range l {
			if strings.TrimSpace(s) != "" {
				return true
			}
		}
	}
	return false
}

// normalizeVariant checks a generated variant and fills the fields generators tend to omit.
func normalizeVariant(v *store.CodebaseVariant) error {
	if strings.TrimSpace(v.Summary.Overview) == "" {
		return errNoOverview
	}
	chapters := v.Chapters[:0]
	for _, ch := range v.Chapters {
		if strings.TrimSpace(ch.Title) != "" {
			chapters = append(chapters, ch)
		}
	}
	if len(chapters) == 0 {
		return errNoChapters
	}
	sort.SliceStable(chapters, func(i, j int) bool { return chapters[i].Order < chapters[j].Order })
	for i := range chapters {
		chapters[i].Order = i + 1
		if chapters[i].Sections == nil {
			chapters[i].Sections = []store.Section{}
		}
	}
	v.Chapters = chapters
	if v.Summary.KeyComponents == nil {
		v.Summary.KeyComponents = []string{}
	}
	if v.Summary.Technologies == nil {
		v.Summary.Technologies = []string{}
	}
	if v.Curriculum.Weeks == nil {
		v.Curriculum.Weeks = []store.CurriculumWeek{}
	}
	if v.KnowledgeGraph.Nodes == nil {
		v.KnowledgeGraph.Nodes = []store.GraphNode{}
	}
	if v.KnowledgeGraph.Edges == nil {
		v.KnowledgeGraph.Edges = []store.GraphEdge{}
	}
	v.GenerationMode = GenerationModeGenerated
	v.Warning = ""
	return nil
}

// pickVariant returns the variant for level, or another available one when level is missing
// or has no chapters. Alternatives with chapters are preferred, then the analysis' level order.
func pickVariant(a *store.CodebaseAnalysis, level string) (store.CodebaseVariant, string, bool) {
	own, hasOwn := a.Variants[level]
	if hasOwn && len(own.Chapters) > 0 {
		return own, level, true
	}
	order := make([]string, 0, len(a.Variants))
	seen := make(map[string]bool, len(a.Variants))
	for _, l := range a.ExperienceLevels {
		if _, ok := a.Variants[l]; ok && !seen[l] {
			order = append(order, l)
			seen[l] = true
		}
	}
	var rest []string
	for l := range a.Variants {
		if !seen[l] {
			rest = append(rest, l)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)
	if len(order) == 0 {
		return store.CodebaseVariant{}, "", false
	}
	for _, l := range order {
		if len(a.Variants[l].Chapters) > 0 {
			return a.Variants[l], l, true
		}
	}
	if hasOwn {
		return own, level, true
	}
	return a.Variants[order[0]], order[0], true
}

// fallbackWeeks builds exactly n weeks by dealing chapters round-robin. A variant without
// chapters yields a single orientation week.
func fallbackWeeks(profile store.CandidateProfile, repoName string, v store.CodebaseVariant, n int) []store.Week {
	if len(v.Chapters) == 0 {
		return []store.Week{orientationWeek(profile, repoName, v)}
	}

	buckets := make([][]store.Chapter, n)
	for i, ch := range v.Chapters {
		buckets[i%n] = append(buckets[i%n], ch)
	}

	gaps := firstN(profile.Analysis.KnowledgeGaps, 3)
	weeks := make([]store.Week, n)
	for i, chapters := range buckets {
		num := i + 1
		if len(chapters) == 0 {
			weeks[i] = practiceWeek(num, profile.Analysis.KnowledgeGaps, v.Summary.KeyComponents)
			continue
		}

		w := store.Week{
			WeekID:   num,
			Title:    weekTitle(num, chapters),
			Status:   weekStatus(num),
			Chapters: []store.PlanChapter{},
			Tasks:    []store.Task{},
			Quiz:     []store.QuizQuestion{},
		}

		var overview strings.Builder
		overview.WriteString("# Overview\n\n")
		if num == 1 {
			fmt.Fprintf(&overview, "Welcome to your onboarding plan for %s, %s!\n\n", repoName, orDefault(profile.Analysis.CandidateName, "New Hire"))
			if len(gaps) > 0 {
				overview.WriteString("## Knowledge gaps to close first\n\n")
				for _, g := range gaps {
					fmt.Fprintf(&overview, "- %s\n", g)
				}
				overview.WriteString("\n")
			}
		}
		overview.WriteString("## This week\n\n")
		for _, ch := range chapters {
			fmt.Fprintf(&overview, "- %s\n", ch.Title)
		}
		w.Overview = strings.TrimSpace(overview.String())

		if num == 1 {
			for _, g := range gaps {
				w.Tasks = append(w.Tasks, store.Task{
					ID:          fmt.Sprintf("task-%d-%d", num, len(w.Tasks)+1),
					Title:       "Close the gap: " + g,
					Description: fmt.Sprintf("Spend focused time on %s and write down how it applies to %s.", g, repoName),
					AssignedBy:  onboardingTeam,
				})
			}
		}
		for _, ch := range chapters {
			w.Chapters = append(w.Chapters, planChapter(ch))
			w.Tasks = append(w.Tasks, store.Task{
				ID:          fmt.Sprintf("task-%d-%d", num, len(w.Tasks)+1),
				Title:       "Study " + ch.Title,
				Description: fmt.Sprintf("Read the %q chapter of the %s guide and note one question for your mentor.", ch.Title, repoName),
				AssignedBy:  onboardingTeam,
			})
			w.Quiz = append(w.Quiz, chapterQuiz(ch)...)
		}
		weeks[i] = w
	}
	return weeks
}

func orientationWeek(profile store.CandidateProfile, repoName string, v store.CodebaseVariant) store.Week {
	var overview strings.Builder
	fmt.Fprintf(&overview, "# Overview\n\nWelcome, %s! No guide chapters are available for %s yet, so this week is about orientation.\n",
		orDefault(profile.Analysis.CandidateName, "New Hire"), repoName)
	if v.Summary.Overview != "" {
		fmt.Fprintf(&overview, "\n%s\n", v.Summary.Overview)
	}
	gaps := firstN(profile.Analysis.KnowledgeGaps, 3)
	if len(gaps) > 0 {
		overview.WriteString("\n## Knowledge gaps to close first\n\n")
		for _, g := range gaps {
			fmt.Fprintf(&overview, "- %s\n", g)
		}
	}

	content := "# Getting Started\n\nClone the repository, build it and run the tests.\n\n## Key Components\n\n"
	for _, c := range v.Summary.KeyComponents {
		content += "- " + c + "\n"
	}
	w := store.Week{
		WeekID:   1,
		Title:    "Orientation",
		Status:   WeekStatusStart,
		Overview: strings.TrimSpace(overview.String()),
		Chapters: []store.PlanChapter{{
			ID:      "getting-started",
			Title:   "Getting Started",
			Content: strings.TrimSpace(content),
			SubItems: []store.SubItem{
				{ID: "key-components", Title: "Key Components"},
			},
		}},
		Tasks: []store.Task{{
			ID:          "task-1-1",
			Title:       "Complete Environment Setup",
			Description: fmt.Sprintf("Set up a local development environment for %s and verify the tests pass.", repoName),
			AssignedBy:  onboardingTeam,
		}},
		Quiz: []store.QuizQuestion{{
			Question: fmt.Sprintf("Which command runs the %s test suite?", repoName),
			Answer:   "Ask your mentor to confirm after setting up the project.",
		}},
	}
	for _, g := range gaps {
		w.Tasks = append(w.Tasks, store.Task{
			ID:          fmt.Sprintf("task-1-%d", len(w.Tasks)+1),
			Title:       "Close the gap: " + g,
			Description: fmt.Sprintf("Spend focused time on %s.", g),
			AssignedBy:  onboardingTeam,
		})
	}
	return w
}

func practiceWeek(num int, gaps, components []string) store.Week {
	w := store.Week{
		WeekID:   num,
		Title:    fmt.Sprintf("Week %d: Practice and Review", num),
		Status:   weekStatus(num),
		Overview: "# Overview\n\nThis week consolidates what you have read so far with hands-on practice.",
		Chapters: []store.PlanChapter{},
		Tasks:    []store.Task{},
		Quiz:     []store.QuizQuestion{},
	}
	if len(gaps) > 0 {
		g := gaps[(num-1)%len(gaps)]
		w.Tasks = append(w.Tasks, store.Task{
			ID:          fmt.Sprintf("task-%d-%d", num, len(w.Tasks)+1),
			Title:       "Practice: " + g,
			Description: fmt.Sprintf("Build a small exercise that uses %s and review it with your mentor.", g),
			AssignedBy:  onboardingTeam,
		})
	}
	if len(components) > 0 {
		c := components[(num-1)%len(components)]
		w.Tasks = append(w.Tasks, store.Task{
			ID:          fmt.Sprintf("task-%d-%d", num, len(w.Tasks)+1),
			Title:       "Trace " + c,
			Description: fmt.Sprintf("Follow %s through the code and summarise how it is used.", c),
			AssignedBy:  onboardingTeam,
		})
	}
	w.Tasks = append(w.Tasks, store.Task{
		ID:          fmt.Sprintf("task-%d-%d", num, len(w.Tasks)+1),
		Title:       "Review progress with your mentor",
		Description: "Go over completed tasks and open questions.",
		AssignedBy:  onboardingTeam,
	})
	return w
}

func planChapter(ch store.Chapter) store.PlanChapter {
	pc := store.PlanChapter{
		ID:       slugify(ch.Title),
		Title:    ch.Title,
		SubItems: []store.SubItem{},
	}
	var content strings.Builder
	fmt.Fprintf(&content, "# %s\n\n%s", ch.Title, ch.Content)
	for _, s := range ch.Sections {
		if s.Heading == "" {
			continue
		}
		fmt.Fprintf(&content, "\n\n## %s\n\n%s", s.Heading, s.Content)
		pc.SubItems = append(pc.SubItems, store.SubItem{ID: slugify(s.Heading), Title: s.Heading})
	}
	pc.Content = strings.TrimSpace(content.String())
	return pc
}

func chapterQuiz(ch store.Chapter) []store.QuizQuestion {
	var quiz []store.QuizQuestion
	for _, s := range ch.Sections {
		if s.Heading == "" || s.Content == "" {
			continue
		}
		quiz = append(quiz, store.QuizQuestion{
			Question: fmt.Sprintf("What does the %q section of %q cover?", s.Heading, ch.Title),
			Answer:   firstSentence(s.Content),
		})
		if len(quiz) == 2 {
			break
		}
	}
	if len(quiz) == 0 {
		quiz = append(quiz, store.QuizQuestion{
			Question: fmt.Sprintf("What is the main idea of %q?", ch.Title),
			Answer:   orDefault(firstSentence(ch.Content), ch.Title),
		})
	}
	return quiz
}

// normalizeWeeks makes generated weeks dense and exactly n long. Fewer than n weeks, or a
// week without an overview or without any chapter or task, is an error.
func normalizeWeeks(weeks []store.Week, n int) ([]store.Week, error) {
	if len(weeks) < n {
		return nil, fmt.Errorf("generated plan has %d weeks, want %d", len(weeks), n)
	}
	weeks = weeks[:n]
	for i := range weeks {
		w := &weeks[i]
		if strings.TrimSpace(w.Overview) == "" {
			return nil, fmt.Errorf("generated week %d has no overview", i+1)
		}
		if len(w.Chapters) == 0 && len(w.Tasks) == 0 {
			return nil, fmt.Errorf("generated week %d has no chapters or tasks", i+1)
		}
		w.WeekID = i + 1
		w.Status = weekStatus(w.WeekID)
		if strings.TrimSpace(w.Title) == "" {
			w.Title = fmt.Sprintf("Week %d", w.WeekID)
		}
		if w.Chapters == nil {
			w.Chapters = []store.PlanChapter{}
		}
		if w.Tasks == nil {
			w.Tasks = []store.Task{}
		}
		if w.Quiz == nil {
			w.Quiz = []store.QuizQuestion{}
		}
		for j := range w.Chapters {
			if w.Chapters[j].ID == "" {
				w.Chapters[j].ID = slugify(w.Chapters[j].Title)
			}
			if w.Chapters[j].SubItems == nil {
				w.Chapters[j].SubItems = []store.SubItem{}
			}
		}
		for j := range w.Tasks {
			if w.Tasks[j].ID == "" {
				w.Tasks[j].ID = fmt.Sprintf("task-%d-%d", w.WeekID, j+1)
			}
			if w.Tasks[j].Progress < 0 || w.Tasks[j].Progress > 100 {
				w.Tasks[j].Progress = 0
			}
		}
	}
	return weeks, nil
}

func weekStatus(num int) string {
	if num == 1 {
		return WeekStatusStart
	}
	return WeekStatusLocked
}

func weekTitle(num int, chapters []store.Chapter) string {
	title := chapters[0].Title
	if len(chapters) > 1 {
		title = fmt.Sprintf("%s and %d more", title, len(chapters)-1)
	}
	return fmt.Sprintf("Week %d: %s", num, title)
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?\n"); i >= 0 {
		return strings.TrimSpace(s[:i+1])
	}
	return s
}
