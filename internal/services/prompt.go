package services

import (
	_ "embed"
	"fmt"
	"strings"
)

const (
	maxCriterionFeedbackChars = 100
	maxOverallFeedbackChars   = 200

	defaultContextMaxChars = 2000
	truncationMarker       = "\n[...truncated]"
)

var (
	//go:embed rubrics/cv.md
	defaultCVRubricGuide string

	//go:embed rubrics/project.md
	defaultProjectRubricGuide string
)

type Criterion struct {
	Key    string
	Name   string
	Weight float64
}

// Rubric is a weighted criteria list. Criterion keys are the keys the model
// must use in its scores object.
type Rubric struct {
	Name     string
	Criteria []Criterion
	Guide    string
}

func (r Rubric) Weights() map[string]float64 {
	weights := make(map[string]float64, len(r.Criteria))
	for _, c := range r.Criteria {
		weights[c.Key] = c.Weight
	}
	return weights
}

var (
	CVRubric = Rubric{
		Name: "CV evaluation",
		Criteria: []Criterion{
			{Key: "technical_skills", Name: "Technical Skills Match", Weight: 0.40},
			{Key: "experience_level", Name: "Experience Level", Weight: 0.25},
			{Key: "relevant_achievements", Name: "Relevant Achievements", Weight: 0.20},
			{Key: "cultural_fit", Name: "Cultural / Collaboration Fit", Weight: 0.15},
		},
		Guide: defaultCVRubricGuide,
	}

	ProjectRubric = Rubric{
		Name: "Project evaluation",
		Criteria: []Criterion{
			{Key: "correctness", Name: "Correctness", Weight: 0.30},
			{Key: "code_quality", Name: "Code Quality & Structure", Weight: 0.25},
			{Key: "resilience", Name: "Resilience & Error Handling", Weight: 0.20},
			{Key: "documentation", Name: "Documentation & Explanation", Weight: 0.15},
			{Key: "creativity", Name: "Creativity / Bonus", Weight: 0.10},
		},
		Guide: defaultProjectRubricGuide,
	}
)

type Prompt struct {
	System string
	User   string
}

// ScoringInput carries what a CV or project scoring prompt needs.
// Requirements and RubricContext are retrieved text and may be empty.
type ScoringInput struct {
	JobTitle      string
	SourceText    string
	Requirements  string
	RubricContext string
}

// SynthesisInput carries both score sets into the final recommendation prompt.
type SynthesisInput struct {
	JobTitle        string
	CVMatchRate     float64
	CVFeedback      string
	ProjectScore    float64
	ProjectFeedback string
}

// PromptAssembler builds prompts. It does no I/O.
type PromptAssembler struct {
	maxContextChars int
}

func NewPromptAssembler(maxContextChars int) *PromptAssembler {
	if maxContextChars <= 0 {
		maxContextChars = defaultContextMaxChars
	}
	return &PromptAssembler{maxContextChars: maxContextChars}
}

func (a *PromptAssembler) CVEvaluation(in ScoringInput) Prompt {
	system := fmt.Sprintf(`You are an expert technical recruiter evaluating a candidate's CV for a %s position.
You score strictly against the provided requirements and rubric and you reply with a single JSON object.`, jobTitleOrDefault(in.JobTitle))

	var b strings.Builder
	a.writeGroundTruth(&b, "JOB REQUIREMENTS", in.Requirements,
		"No reference job description is available. Judge against common expectations for the role title.")
	a.writeRubric(&b, CVRubric, in.RubricContext)
	writeSection(&b, "CANDIDATE CV", in.SourceText)
	b.WriteString("Evaluate the CV against the job requirements using the scoring rubric.\n\n")
	writeCriteriaAndFormat(&b, CVRubric)

	return Prompt{System: system, User: b.String()}
}

func (a *PromptAssembler) ProjectEvaluation(in ScoringInput) Prompt {
	system := `You are an expert technical evaluator assessing a candidate's take-home project report.
You score strictly against the provided case study and rubric and you reply with a single JSON object.`

	var b strings.Builder
	a.writeGroundTruth(&b, "CASE STUDY REQUIREMENTS", in.Requirements,
		"No reference case study brief is available. Judge the report on general engineering merit.")
	a.writeRubric(&b, ProjectRubric, in.RubricContext)
	writeSection(&b, "CANDIDATE PROJECT REPORT", in.SourceText)
	b.WriteString("Evaluate the project report against the case study requirements using the scoring rubric.\n\n")
	writeCriteriaAndFormat(&b, ProjectRubric)

	return Prompt{System: system, User: b.String()}
}

func (a *PromptAssembler) Synthesis(in SynthesisInput) Prompt {
	system := fmt.Sprintf("You are an experienced hiring manager making a final assessment of a candidate for a %s position.",
		jobTitleOrDefault(in.JobTitle))

	user := fmt.Sprintf(`CV EVALUATION
- Match rate: %.2f (0.0 to 1.0)
- Feedback: %s

PROJECT EVALUATION
- Project score: %.2f (1.0 to 5.0)
- Feedback: %s

Write an overall summary of 3 to 5 sentences covering the candidate's main strengths, the key gaps,
and a final recommendation (Strong Hire / Hire / Maybe / No Hire).
Reply with plain text only. Do not use JSON, headings or lists.`,
		in.CVMatchRate, strings.TrimSpace(in.CVFeedback), in.ProjectScore, strings.TrimSpace(in.ProjectFeedback))

	return Prompt{System: system, User: user}
}

// RetrievalQuery returns the query text used to fetch ground truth of the given type.
func RetrievalQuery(docType DocumentType, jobTitle string) string {
	switch docType {
	case DocTypeJobDescription:
		return fmt.Sprintf("Job requirements and qualifications for %s", jobTitleOrDefault(jobTitle))
	case DocTypeCaseStudy:
		return "Project requirements, technical specifications, and evaluation criteria"
	case DocTypeCVRubric:
		return "CV evaluation criteria and scoring guidelines"
	case DocTypeProjectRubric:
		return "Project evaluation criteria and scoring guidelines"
	default:
		return jobTitle
	}
}

func (a *PromptAssembler) writeGroundTruth(b *strings.Builder, title, context, fallback string) {
	if context = strings.TrimSpace(context); context == "" {
		writeSection(b, title, fallback)
		return
	}
	writeSection(b, "GROUND TRUTH: "+title, a.truncate(context))
}

// writeRubric injects the retrieved rubric, or the embedded default when retrieval found none.
func (a *PromptAssembler) writeRubric(b *strings.Builder, rubric Rubric, context string) {
	if context = strings.TrimSpace(context); context != "" {
		writeSection(b, "GROUND TRUTH: SCORING RUBRIC", a.truncate(context))
		return
	}
	writeSection(b, "DEFAULT SCORING RUBRIC", rubric.Guide)
}

func (a *PromptAssembler) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= a.maxContextChars {
		return s
	}
	return strings.TrimSpace(string(runes[:a.maxContextChars])) + truncationMarker
}

func writeSection(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "=== %s ===\n%s\n=== END %s ===\n\n", title, strings.TrimSpace(body), title)
}

func writeCriteriaAndFormat(b *strings.Builder, rubric Rubric) {
	b.WriteString("Score each criterion from 1 to 5:\n")
	for i, c := range rubric.Criteria {
		fmt.Fprintf(b, "%d. %s (key: %s, weight: %.2f)\n", i+1, c.Name, c.Key, c.Weight)
	}

	b.WriteString("\nReply with ONLY this JSON object. Do not wrap it in markdown code fences and do not add any text before or after it:\n")
	b.WriteString("{\n  \"scores\": {\n")
	for i, c := range rubric.Criteria {
		sep := ","
		if i == len(rubric.Criteria)-1 {
			sep = ""
		}
		fmt.Fprintf(b, "    %q: {\"score\": <1-5>, \"weight\": %.2f, \"feedback\": \"<max %d characters>\"}%s\n",
			c.Key, c.Weight, maxCriterionFeedbackChars, sep)
	}
	fmt.Fprintf(b, "  },\n  \"feedback\": \"<overall feedback, max %d characters>\"\n}\n", maxOverallFeedbackChars)
	fmt.Fprintf(b, "\nKeep every criterion feedback under %d characters and the overall feedback under %d characters.\n",
		maxCriterionFeedbackChars, maxOverallFeedbackChars)
}

func jobTitleOrDefault(title string) string {
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	return "software engineering"
}
