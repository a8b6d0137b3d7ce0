package formfill

import (
	_ "embed"
	"encoding/json"
	"sort"

	"github.com/ezcommon/apply-portal/internal/model"
)

//go:embed general_questions.json
var generalQuestionsJSON []byte

var generalQuestions = mustLoadGeneralQuestions()

func mustLoadGeneralQuestions() []model.FormQuestion {
	var questions []model.FormQuestion
	if err := json.Unmarshal(generalQuestionsJSON, &questions); err != nil {
		panic("formfill: invalid embedded general_questions.json: " + err.Error())
	}
	return questions
}

// GeneralQuestions returns the built-in common application question set.
func GeneralQuestions() []model.FormQuestion {
	out := make([]model.FormQuestion, len(generalQuestions))
	copy(out, generalQuestions)
	return out
}

// GeneralQuestionsBySection filters the built-in questions to one
// section.
func GeneralQuestionsBySection(section string) []model.FormQuestion {
	var out []model.FormQuestion
	for _, q := range generalQuestions {
		if q.Section == section {
			out = append(out, q)
		}
	}
	return out
}

// QuestionSections lists the sections covered by the built-in
// questions, sorted.
func QuestionSections() []string {
	seen := make(map[string]bool)
	for _, q := range generalQuestions {
		if q.Section != "" {
			seen[q.Section] = true
		}
	}

	sections := make([]string, 0, len(seen))
	for s := range seen {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	return sections
}
