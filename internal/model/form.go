package model

import "time"

// QuestionType identifies how a school form question is answered.
type QuestionType string

const (
	QuestionShortAnswer  QuestionType = "short_answer"
	QuestionLongAnswer   QuestionType = "long_answer"
	QuestionSingleSelect QuestionType = "single_select"
	QuestionMultiSelect  QuestionType = "multi_select"
)

// FormQuestion is one question on a school application form.
type FormQuestion struct {
	ID       string       `json:"id"`
	Label    string       `json:"label"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	Section  string       `json:"section,omitempty"`
	Required bool         `json:"required,omitempty"`
}

// FieldDefinition names a single piece of information to extract.
type FieldDefinition struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Source   string `json:"source,omitempty"`
}

// FieldResult is the extraction outcome for one field.
type FieldResult struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Value       string   `json:"value"`
	Filled      bool     `json:"filled"`
	SourceFiles []string `json:"source_files,omitempty"`
}

// FilledAnswer is the answer produced for one school form question.
type FilledAnswer struct {
	QuestionID  string   `json:"question_id"`
	Label       string   `json:"label"`
	Answer      string   `json:"answer"`
	Filled      bool     `json:"filled"`
	SourceFiles []string `json:"source_files,omitempty"`
}

// FormOutput is a persisted filled-form document. SchoolID is empty for
// general-questions outputs.
type FormOutput struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	SchoolID    string         `json:"school_id,omitempty"`
	Answers     []FilledAnswer `json:"answers"`
	FilledCount int            `json:"filled_count"`
	SuccessRate float64        `json:"success_rate"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
