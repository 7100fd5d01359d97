package research

import (
	"fmt"
	"strings"
)

// MaxIterations caps a deep research conversation. The answer produced in
// the last iteration is treated as final whatever it says.
const MaxIterations = 5

// ContinuePrompt is sent on the user's behalf to start the next iteration.
const ContinuePrompt = "[DEEP RESEARCH] Continue the research"

type StageType string

const (
	StagePlan       StageType = "plan"
	StageUpdate     StageType = "update"
	StageConclusion StageType = "conclusion"
)

// Stage is one navigable step of a research conversation.
type Stage struct {
	Type      StageType `json:"type"`
	Iteration int       `json:"iteration"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
}

// ExtractStage classifies the answer of the given iteration. The second
// return value is false when the answer carries none of the stage headings.
func ExtractStage(content string, iteration int) (Stage, bool) {
	if iteration == 1 && strings.Contains(content, "## Research Plan") {
		return Stage{Type: StagePlan, Iteration: 1, Title: "Research Plan", Content: content}, true
	}

	if iteration >= 1 && iteration < MaxIterations {
		title := fmt.Sprintf("Research Update %d", iteration)
		if strings.Contains(content, "## "+title) {
			return Stage{Type: StageUpdate, Iteration: iteration, Title: title, Content: content}, true
		}
	}

	if strings.Contains(content, "## Final Conclusion") {
		return Stage{Type: StageConclusion, Iteration: iteration, Title: "Final Conclusion", Content: content}, true
	}

	return Stage{}, false
}

// Status is the verdict on one streamed answer.
type Status struct {
	Iteration int    `json:"iteration"`
	Complete  bool   `json:"complete"`
	Forced    bool   `json:"forced"`
	Stage     *Stage `json:"stage,omitempty"`
	Next      string `json:"next,omitempty"`
}

// Evaluate decides whether the research ends with this answer. Reaching
// MaxIterations forces completion.
func Evaluate(content string, iteration int) Status {
	st := Status{Iteration: iteration}
	if stage, ok := ExtractStage(content, iteration); ok {
		st.Stage = &stage
	}

	switch {
	case IsComplete(content):
		st.Complete = true
	case iteration >= MaxIterations:
		st.Complete = true
		st.Forced = true
	default:
		st.Next = ContinuePrompt
	}
	return st
}
