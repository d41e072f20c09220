package assessment

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/elimu/core"
)

// Assignment types
const (
	TypeTest = "test"
	TypeTask = "task"
)

// Result statuses: (none) -> StatusInProgress -> StatusSubmitted -> StatusMarked.
// No backward transitions; a marked result is terminal except for re-marking.
const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
	StatusMarked     = "marked"
)

// Outcomes
const (
	OutcomeCompetent       = "Competent"
	OutcomeNotYetCompetent = "Not Yet Competent"
)

// QuestionType is an explicit variant tag; each variant carries only the
// fields relevant to that type.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionShortAnswer    QuestionType = "short-answer"
	QuestionLongAnswer     QuestionType = "long-answer"
)

func (qt QuestionType) Valid() bool {
	switch qt {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer, QuestionLongAnswer:
		return true
	}
	return false
}

// HasOptions reports whether the variant carries an option list.
func (qt QuestionType) HasOptions() bool {
	return qt == QuestionMultipleChoice || qt == QuestionTrueFalse
}

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []Option     `json:"options,omitempty"`        // choice variants only
	CorrectAnswer string       `json:"correct_answer,omitempty"` // choice variants only
	Mark          int          `json:"mark"`
}

// Assignment is a test or task definition with a shared time-boxed access password.
type Assignment struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title"`
	Type                string        `json:"type"` // test|task
	Duration            time.Duration `json:"duration"`
	AvailableFrom       time.Time     `json:"available_from"`
	AvailableUntil      null.Time     `json:"available_until,omitempty"`
	CampusIDs           []string      `json:"campus_ids"`
	IntakeGroupIDs      []string      `json:"intake_group_ids"`
	Password            string        `json:"-"`
	PasswordGeneratedAt time.Time     `json:"-"`
	Questions           []Question    `json:"questions"`
	CreatedBy           string        `json:"created_by"`
	CreatedAt           time.Time     `json:"created_at"` // UTC
	UpdatedAt           time.Time     `json:"updated_at"` // UTC
}

// ScoreMap maps a question identifier to the points awarded for it.
type ScoreMap map[string]int

func (sm ScoreMap) Total() int {
	var total int
	for _, points := range sm {
		total += points
	}
	return total
}

// Result is one student's attempt record against an Assignment.
type Result struct {
	ID              string            `json:"id"`
	AssignmentID    string            `json:"assignment_id"`
	StudentID       string            `json:"student_id"`
	Status          string            `json:"status"`
	DateTaken       time.Time         `json:"date_taken"` // UTC
	Answers         map[string]string `json:"answers,omitempty"`
	Scores          ScoreMap          `json:"scores,omitempty"`
	ModeratedScores ScoreMap          `json:"moderated_scores,omitempty"`
	TestScore       null.Int          `json:"test_score,omitempty"`
	TaskScore       null.Int          `json:"task_score,omitempty"`
	Percent         int               `json:"percent"`
	OverallOutcome  string            `json:"overall_outcome,omitempty"`
	MarkedBy        null.String       `json:"marked_by,omitempty"`
	// Version drives compare-and-swap updates so concurrent submit/mark calls
	// cannot silently overwrite each other.
	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewAssignment contains information needed to create an Assignment.
type NewAssignment struct {
	Title          string        `json:"title" validate:"required"`
	Type           string        `json:"type" validate:"required,oneof=test task"`
	Duration       time.Duration `json:"duration" validate:"required,gt=0"`
	AvailableFrom  time.Time     `json:"available_from" validate:"required"`
	AvailableUntil null.Time     `json:"available_until"`
	CampusIDs      []string      `json:"campus_ids"`
	IntakeGroupIDs []string      `json:"intake_group_ids"`
	Questions      []Question    `json:"questions" validate:"required,min=1,dive"`
}

func (na *NewAssignment) Validate() error {
	na.Title = core.CleanString(na.Title)
	if err := core.Validate.Struct(na); err != nil {
		return err
	}
	return validateQuestions(na.Questions)
}

// UpdateAssignment defines what may be modified on an existing Assignment.
type UpdateAssignment struct {
	Title          string        `json:"title"`
	Duration       time.Duration `json:"duration" validate:"omitempty,gt=0"`
	AvailableFrom  time.Time     `json:"available_from"`
	AvailableUntil null.Time     `json:"available_until"`
	CampusIDs      []string      `json:"campus_ids"`
	IntakeGroupIDs []string      `json:"intake_group_ids"`
	Questions      []Question    `json:"questions" validate:"omitempty,min=1,dive"`
}

func (ua *UpdateAssignment) Validate() error {
	ua.Title = core.CleanString(ua.Title)
	if err := core.Validate.Struct(ua); err != nil {
		return err
	}
	if ua.Questions == nil {
		return nil
	}
	return validateQuestions(ua.Questions)
}

func validateQuestions(questions []Question) error {
	var flds []core.FieldError
	for _, q := range questions {
		if !q.Type.Valid() {
			flds = append(flds, core.FieldError{Field: "questions", Error: "unknown question type: " + string(q.Type)})
			continue
		}
		if q.Type.HasOptions() {
			if len(q.Options) == 0 {
				flds = append(flds, core.FieldError{Field: "questions", Error: "choice questions require options"})
				continue
			}
			if q.CorrectAnswer != "" && !optionExists(q.Options, q.CorrectAnswer) {
				flds = append(flds, core.FieldError{Field: "questions", Error: "correct answer is not one of the options"})
			}
		} else if len(q.Options) > 0 {
			flds = append(flds, core.FieldError{Field: "questions", Error: "non-choice questions cannot carry options"})
		}
		if q.Mark <= 0 {
			flds = append(flds, core.FieldError{Field: "questions", Error: "question mark must be positive"})
		}
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func optionExists(options []Option, id string) bool {
	for _, opt := range options {
		if opt.ID == id {
			return true
		}
	}
	return false
}
