package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"gwi.com/onboarding-backend/internal/codebase"
	"gwi.com/onboarding-backend/internal/config"
	"gwi.com/onboarding-backend/internal/llm"
	"gwi.com/onboarding-backend/internal/store"
)

const (
	maxResumeChars = 20000

	resumeSystemInstruction = `You are an experienced technical recruiter who reads software engineering resumes and returns a structured assessment. You return only valid JSON.`

	codebaseSystemInstruction = `You are a principal engineer who writes onboarding material for a codebase you know well. You return only valid JSON.`

	planSystemInstruction = `You are an expert technical onboarding specialist who creates personalized learning plans for software engineers. You return only valid JSON.`

	chatSystemInstruction = `You are an onboarding mentor answering questions about a single software repository. Ground your answers in the provided repository material, say so when the material does not cover the question, and keep answers short and practical.`
)

const resumeSchema = `{
  "candidate_name": "string",
  "experience_years": number,
  "education": ["string"],
  "technical_skills": {
    "languages": ["string"],
    "frameworks": ["string"],
    "tools": ["string"],
    "databases": ["string"]
  },
  "experience_summary": ["string"],
  "strengths": ["string"],
  "knowledge_gaps": ["string"],
  "recommended_learning_path": ["string"]
}`

func resumePrompt(text string) llm.Prompt {
	if len(text) > maxResumeChars {
		text = truncateUTF8(text, maxResumeChars)
	}
	user := fmt.Sprintf(`Analyze the following resume and return JSON that matches this structure exactly:

%s

Rules:
1. experience_years is the total years of professional software experience as a number.
2. knowledge_gaps lists concrete topics the candidate should learn to be productive on a modern backend team.
3. recommended_learning_path is ordered, most important first.
4. Use empty lists rather than omitting fields.

RESUME:
%s

Return ONLY valid JSON, no additional text.`, resumeSchema, text)

	return llm.Prompt{System: resumeSystemInstruction, User: user, JSON: true, Temperature: 0.2, MaxTokens: 4000}
}

const (
	juniorInstructions = `The reader is a junior engineer. Focus on fundamentals: how to set up the project locally, how the code is laid out, how a request flows through the main components, how to run and write tests, and which small, safe tasks make good first contributions. Explain jargon the first time it appears.`

	seniorInstructions = `The reader is a senior engineer. Focus on architecture and ownership: the main design decisions and their trade-offs, module boundaries, data flow and failure modes, operational concerns, performance hot spots, and the high-impact areas where an experienced engineer should take ownership first.`
)

const variantSchema = `{
  "summary": {
    "overview": "string",
    "purpose": "string",
    "key_components": ["string"],
    "technologies": ["string"],
    "difficulty_level": "beginner | intermediate | advanced"
  },
  "chapters": [
    {
      "title": "string",
      "order": 1,
      "content": "markdown",
      "sections": [{"heading": "string", "content": "markdown"}]
    }
  ],
  "curriculum": {
    "weeks": [{"week": 1, "title": "string", "goals": ["string"]}]
  },
  "knowledge_graph": {
    "nodes": [{"id": "string", "label": "string", "type": "module | concept | service", "file_path": "string"}],
    "edges": [{"source": "node id", "target": "node id", "relationship": "string"}]
  }
}`

// PromptBook holds the per-level instructions used to generate codebase variants.
type PromptBook struct {
	instructions map[string]string
}

// NewPromptBook returns the built-in junior and senior templates plus any level definitions
// that carry their own prompt text.
func NewPromptBook(defs ...config.LevelDef) *PromptBook {
	pb := &PromptBook{instructions: map[string]string{
		LevelJunior: juniorInstructions,
		LevelSenior: seniorInstructions,
	}}
	for _, d := range defs {
		if strings.TrimSpace(d.Prompt) != "" {
			pb.instructions[strings.ToLower(d.Name)] = strings.TrimSpace(d.Prompt)
		}
	}
	return pb
}

// Instructions returns the template for level. Levels without one use the junior template.
func (pb *PromptBook) Instructions(level string) string {
	if s, ok := pb.instructions[strings.ToLower(level)]; ok {
		return s
	}
	return pb.instructions[LevelJunior]
}

// CodebasePrompt asks for one variant. source is the rendered repository context and may be
// empty, in which case the model only has the repository URL to go on.
func (pb *PromptBook) CodebasePrompt(repoURL, level, source string) llm.Prompt {
	grounding := "4. The knowledge graph connects the key components."
	if source != "" {
		source = "\n" + source + "\n"
		grounding = "4. Ground every chapter in the files shown above and mention file paths where they help."
	}
	user := fmt.Sprintf(`Write onboarding material for the repository %s at the %q experience level.

%s
%s
Return JSON that matches this structure exactly:

%s

Requirements:
1. Write between 4 and 8 chapters ordered from first to last read.
2. Each chapter has markdown content and 2-4 sections whose headings match the content.
3. The curriculum covers 4 weeks.
%s

Return ONLY valid JSON, no additional text.`, repoURL, level, pb.Instructions(level), source, variantSchema, grounding)

	return llm.Prompt{System: codebaseSystemInstruction, User: user, JSON: true, Temperature: 0.3, MaxTokens: 8000}
}

const (
	maxKeyFiles     = 15
	maxKeyFileChars = 6000
	maxSourceChars  = 60000
)

// renderSource lays out the structure summary and key file contents for a codebase prompt,
// truncating each file and the whole block to keep the prompt bounded.
func renderSource(snap *codebase.Snapshot, keyFiles []codebase.File) string {
	var b strings.Builder
	b.WriteString(snap.Summary())
	b.WriteString("\nKey files:\n")
	for _, f := range keyFiles {
		content := f.Content
		if len(content) > maxKeyFileChars {
			content = truncateUTF8(content, maxKeyFileChars) + "\n... (truncated)"
		}
		block := fmt.Sprintf("\nFile: %s\n```%s\n%s\n```\n", f.Path, fence(f.Language), strings.TrimRight(content, "\n"))
		if b.Len()+len(block) > maxSourceChars {
			break
		}
		b.WriteString(block)
	}
	return b.String()
}

func fence(lang string) string {
	if lang == codebase.LangOther {
		return ""
	}
	return lang
}

const planSchema = `{
  "weeks": [
    {
      "weekId": 1,
      "title": "Week Title",
      "status": "start",
      "overview": "# Overview\n\nMarkdown content for week overview...",
      "chapters": [
        {
          "id": "chapter-slug",
          "title": "Chapter Title",
          "content": "# Chapter Title\n\nMarkdown content...",
          "subItems": [{"id": "section-slug", "title": "Section Title"}]
        }
      ],
      "tasks": [
        {"id": "task-1-1", "title": "Task Title", "description": "Detailed task description", "assignedBy": "Mentor Name", "progress": 0}
      ],
      "quiz": [{"question": "string", "options": ["string"], "answer": "string"}]
    }
  ]
}`

func planPrompt(profile store.CandidateProfile, repoURL string, variant store.CodebaseVariant, weeks int) llm.Prompt {
	a := profile.Analysis
	titles := make([]string, 0, len(variant.Chapters))
	for _, ch := range variant.Chapters {
		titles = append(titles, ch.Title)
	}

	user := fmt.Sprintf(`Generate a personalized %d-week onboarding study plan for a new software engineer.

The plan should match this JSON structure EXACTLY:

%s

CANDIDATE PROFILE:
Name: %s
Experience: %s years
Technical Skills: %s
Strengths: %s
Knowledge Gaps: %s
Recommended Learning Path: %s

CODEBASE INFORMATION:
Repository: %s
Overview: %s
Purpose: %s
Key Components: %s
Technologies: %s
Difficulty Level: %s

Chapters Available in Codebase:
%s

REQUIREMENTS:
1. Create exactly %d weeks with weekId 1 to %d.
2. The first week addresses the candidate's knowledge gaps before anything else.
3. Week 1 has status "start"; later weeks are "locked".
4. Each week has 2-4 chapters with markdown content and subItems that match the headings.
5. Include 2-3 practical, codebase-specific tasks per week.
6. Use the codebase chapters as source material.

Return ONLY valid JSON, no additional text.`,
		weeks, planSchema,
		orDefault(a.CandidateName, "Unknown"), orDefault(a.ExperienceYears.String(), "0"),
		toJSON(a.TechnicalSkills), toJSON(a.Strengths), toJSON(a.KnowledgeGaps), toJSON(a.RecommendedLearningPath),
		repoURL, orDefault(variant.Summary.Overview, "N/A"), orDefault(variant.Summary.Purpose, "N/A"),
		toJSON(variant.Summary.KeyComponents), toJSON(variant.Summary.Technologies),
		orDefault(variant.Summary.DifficultyLevel, "intermediate"),
		toJSON(titles), weeks, weeks)

	return llm.Prompt{System: planSystemInstruction, User: user, JSON: true, Temperature: 0.4, MaxTokens: 8000}
}

func chatPrompt(analysis *store.CodebaseVariant, repoName, material string, history []ChatTurn, question string) llm.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", repoName)
	if analysis != nil && analysis.Summary.Overview != "" {
		fmt.Fprintf(&b, "Overview: %s\n", analysis.Summary.Overview)
	}
	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
	}
	if material != "" {
		fmt.Fprintf(&b, "\nBased on the following potentially relevant material from the repository's onboarding guide:\n\n--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\n", material)
	} else {
		b.WriteString("\nNo chapter of the onboarding guide matched this question.\n\n")
	}
	fmt.Fprintf(&b, "Now, please answer my question: %s", question)

	return llm.Prompt{System: chatSystemInstruction, User: b.String(), Temperature: 0.5, MaxTokens: 1500}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
