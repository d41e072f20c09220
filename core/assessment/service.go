package assessment

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
)

var (
	// errors
	ErrAssignmentNotFound = errors.New("Assignment not found")
	ErrInvalidID          = errors.New("Invalid assignment ID")
	ErrResultNotFound     = errors.New("result not found")
	ErrAlreadyCompleted   = errors.New("assignment already completed")
	ErrAttemptInProgress  = errors.New("an attempt is already in progress")
	ErrInvalidTransition  = errors.New("result status cannot move backwards")
	ErrTimeExpired        = errors.New("the time window for this attempt has elapsed")
	ErrVersionConflict    = errors.New("result was modified concurrently")

	// mockable
	nowFunc     = time.Now
	passwordTTL = core.Conf.AssessmentPasswordTimeout
)

const (
	// maxPossibleScore is a fixed normalization constant; percent is NOT
	// derived from the sum of per-question maxima.
	maxPossibleScore = 100
	// competencyThreshold is a fixed cutoff, not configurable per assignment.
	competencyThreshold = 40

	// submissionGrace absorbs clock skew and upload latency on timed submits.
	submissionGrace = 2 * time.Minute

	passwordLen = 8
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		GetAssignmentByID(ctx context.Context, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, filter *AssignmentFilter, ordering ...core.DBOrdering) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// SetAssignmentPassword rewrites password + generation stamp as one update.
		SetAssignmentPassword(ctx context.Context, id, password string, generatedAt time.Time) (Assignment, error)
		DeleteAssignmentsByID(ctx context.Context, ids ...string) error

		CreateResult(ctx context.Context, res Result) (Result, error)
		GetResultByID(ctx context.Context, id string) (Result, error)
		// GetResultByStatus returns the student's result for the assignment with
		// one of the given statuses, newest first.
		GetResultByStatus(ctx context.Context, assignmentID, studentID string, statuses ...string) (Result, error)
		QueryResults(ctx context.Context, assignmentID string) ([]Result, error)
		// UpdateResult is a compare-and-swap on Result.Version; it returns
		// ErrVersionConflict when the row moved underneath the caller.
		UpdateResult(ctx context.Context, res Result) (Result, error)
	}

	AssignmentFilter struct {
		Search        string    `query:"search"`
		Type          string    `query:"type"`
		CampusID      string    `query:"campus"`
		IntakeGroupID string    `query:"intake_group"`
		AvailableFrom time.Time `query:"available_from"`
		AvailableTo   time.Time `query:"available_to"`
	}

	// PasswordCheck is what a student learns from a password attempt. On an
	// invalid attempt the assignment payload is withheld; the caller learns
	// nothing beyond "invalid or expired".
	PasswordCheck struct {
		Valid      bool        `json:"valid"`
		Message    string      `json:"message,omitempty"`
		Assignment *Assignment `json:"assignment,omitempty"`
	}

	// AttemptStatus is a two-flag decision, not a single enum: "completed" and
	// "stale in-progress" are independent facts the caller reacts to
	// differently (block vs. allow-resume).
	AttemptStatus struct {
		IsCompleted          bool `json:"is_completed"`
		HasIncompleteAttempt bool `json:"has_incomplete_attempt"`
	}

	Service interface {
		Create(ctx context.Context, na NewAssignment, createdBy string) (Assignment, error)
		GetByID(ctx context.Context, id string) (Assignment, error)
		Query(ctx context.Context, filter *AssignmentFilter, ordering ...core.DBOrdering) ([]Assignment, error)
		Update(ctx context.Context, id string, ua UpdateAssignment) (Assignment, error)
		Delete(ctx context.Context, ids ...string) error

		GeneratePassword(ctx context.Context, assignmentID string) (Assignment, error)
		ValidatePassword(ctx context.Context, assignmentID, supplied string) (PasswordCheck, error)
		VerifyStatus(ctx context.Context, assignmentID, studentID string) (AttemptStatus, error)
		StartAttempt(ctx context.Context, assignmentID, studentID string) (Result, error)
		SubmitAttempt(ctx context.Context, resultID string, answers map[string]string) (Result, error)
		SubmitScore(ctx context.Context, resultID string, scores ScoreMap, staffID, assignmentType string) (Result, error)
		Results(ctx context.Context, assignmentID string) ([]Result, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, na NewAssignment, createdBy string) (Assignment, error) {
	now := nowFunc().UTC()
	a := Assignment{
		Title:          na.Title,
		Type:           na.Type,
		Duration:       na.Duration,
		AvailableFrom:  na.AvailableFrom,
		AvailableUntil: na.AvailableUntil,
		CampusIDs:      na.CampusIDs,
		IntakeGroupIDs: na.IntakeGroupIDs,
		Questions:      ensureQuestionIDs(na.Questions),
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreateAssignment(ctx, a)
}

func (svc *service) GetByID(ctx context.Context, id string) (Assignment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Assignment{}, ErrInvalidID
	}
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *AssignmentFilter, ordering ...core.DBOrdering) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, filter, ordering...)
}

func (svc *service) Update(ctx context.Context, id string, ua UpdateAssignment) (Assignment, error) {
	a, err := svc.GetByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if ua.Title != "" {
		a.Title = ua.Title
	}
	if ua.Duration > 0 {
		a.Duration = ua.Duration
	}
	if !ua.AvailableFrom.IsZero() {
		a.AvailableFrom = ua.AvailableFrom
	}
	if ua.AvailableUntil.Valid {
		a.AvailableUntil = ua.AvailableUntil
	}
	if ua.CampusIDs != nil {
		a.CampusIDs = ua.CampusIDs
	}
	if ua.IntakeGroupIDs != nil {
		a.IntakeGroupIDs = ua.IntakeGroupIDs
	}
	if ua.Questions != nil {
		a.Questions = ensureQuestionIDs(ua.Questions)
	}
	a.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteAssignmentsByID(ctx, ids...)
}

// GeneratePassword rewrites the assignment's shared password and stamps
// PasswordGeneratedAt; the password only gates access while
// now - PasswordGeneratedAt <= passwordTTL.
func (svc *service) GeneratePassword(ctx context.Context, assignmentID string) (Assignment, error) {
	if _, err := uuid.Parse(assignmentID); err != nil {
		return Assignment{}, ErrInvalidID
	}
	pwd, err := randomPassword()
	if err != nil {
		return Assignment{}, pkgerrors.Wrap(err, "generating password")
	}
	return svc.repo.SetAssignmentPassword(ctx, assignmentID, pwd, nowFunc().UTC())
}

// ValidatePassword gates a student's entry into a timed attempt.
func (svc *service) ValidatePassword(ctx context.Context, assignmentID, supplied string) (PasswordCheck, error) {
	if _, err := uuid.Parse(assignmentID); err != nil {
		return PasswordCheck{Message: ErrInvalidID.Error()}, nil
	}
	a, err := svc.repo.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		if pkgerrors.Cause(err) == ErrAssignmentNotFound {
			return PasswordCheck{Message: ErrAssignmentNotFound.Error()}, nil
		}
		return PasswordCheck{}, pkgerrors.Wrap(err, "finding assignment")
	}

	passwordMatches := a.Password != "" && supplied == a.Password
	withinWindow := nowFunc().Sub(a.PasswordGeneratedAt) <= passwordTTL
	if !(passwordMatches && withinWindow) {
		// no assignment payload on failure; the caller learns nothing more
		return PasswordCheck{Message: "invalid or expired password"}, nil
	}
	return PasswordCheck{Valid: true, Message: "ok", Assignment: &a}, nil
}

// VerifyStatus reports the student's standing against the retake policy.
func (svc *service) VerifyStatus(ctx context.Context, assignmentID, studentID string) (AttemptStatus, error) {
	var status AttemptStatus

	a, err := svc.GetByID(ctx, assignmentID)
	if err != nil {
		return status, err
	}

	if _, err = svc.repo.GetResultByStatus(ctx, assignmentID, studentID, StatusSubmitted, StatusMarked); err == nil {
		// a finished attempt blocks the normal flow regardless of any later
		// password regeneration
		status.IsCompleted = true
	} else if pkgerrors.Cause(err) != ErrResultNotFound {
		return status, pkgerrors.Wrap(err, "finding completed result")
	}

	inProg, err := svc.repo.GetResultByStatus(ctx, assignmentID, studentID, StatusInProgress)
	if err != nil {
		if pkgerrors.Cause(err) == ErrResultNotFound {
			return status, nil
		}
		return status, pkgerrors.Wrap(err, "finding in-progress result")
	}
	// staff regenerating the password after an abandoned attempt authorizes
	// exactly one resumed attempt
	if a.PasswordGeneratedAt.After(inProg.DateTaken) {
		status.HasIncompleteAttempt = true
	}
	return status, nil
}

// StartAttempt opens (or resumes, under the stale-password rule) the student's
// in-progress result. At most one in-progress result per (assignment, student)
// is active.
func (svc *service) StartAttempt(ctx context.Context, assignmentID, studentID string) (Result, error) {
	a, err := svc.GetByID(ctx, assignmentID)
	if err != nil {
		return Result{}, err
	}

	status, err := svc.VerifyStatus(ctx, assignmentID, studentID)
	if err != nil {
		return Result{}, err
	}
	if status.IsCompleted {
		return Result{}, ErrAlreadyCompleted
	}

	now := nowFunc().UTC()
	inProg, err := svc.repo.GetResultByStatus(ctx, assignmentID, studentID, StatusInProgress)
	switch {
	case err == nil && status.HasIncompleteAttempt:
		// resume: restamp DateTaken so the same password cannot authorize another retake
		inProg.DateTaken = now
		inProg.UpdatedAt = now
		return svc.repo.UpdateResult(ctx, inProg)
	case err == nil:
		return Result{}, ErrAttemptInProgress
	case pkgerrors.Cause(err) != ErrResultNotFound:
		return Result{}, pkgerrors.Wrap(err, "finding in-progress result")
	}

	res := Result{
		AssignmentID: a.ID,
		StudentID:    studentID,
		Status:       StatusInProgress,
		DateTaken:    now,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateResult(ctx, res)
}

// SubmitAttempt records the student's answers and moves the result to
// submitted, provided the duration window (plus grace) has not elapsed.
func (svc *service) SubmitAttempt(ctx context.Context, resultID string, answers map[string]string) (Result, error) {
	res, err := svc.repo.GetResultByID(ctx, resultID)
	if err != nil {
		return Result{}, err
	}
	if res.Status != StatusInProgress {
		return Result{}, ErrInvalidTransition
	}

	a, err := svc.repo.GetAssignmentByID(ctx, res.AssignmentID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "finding assignment")
	}
	if nowFunc().UTC().Sub(res.DateTaken) > a.Duration+submissionGrace {
		return Result{}, ErrTimeExpired
	}

	res.Status = StatusSubmitted
	res.Answers = answers
	res.Scores = autoScore(a.Questions, answers)
	res.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateResult(ctx, res)
}

// SubmitScore finalizes (or re-marks) a result from the staff moderation pass.
// total is the sum of awarded points; percent normalizes against the fixed
// constant, not the per-question maxima.
func (svc *service) SubmitScore(ctx context.Context, resultID string, scores ScoreMap, staffID, assignmentType string) (Result, error) {
	res, err := svc.repo.GetResultByID(ctx, resultID)
	if err != nil {
		return Result{}, err
	}
	if res.Status == StatusInProgress {
		return Result{}, ErrInvalidTransition
	}

	total := scores.Total()
	percent := int(math.Round(float64(total) / maxPossibleScore * 100))
	outcome := OutcomeNotYetCompetent
	if percent >= competencyThreshold {
		outcome = OutcomeCompetent
	}

	switch assignmentType {
	case TypeTask:
		res.TaskScore.SetValid(total)
	default:
		res.TestScore.SetValid(total)
	}
	res.Status = StatusMarked
	res.ModeratedScores = scores
	res.Percent = percent
	res.OverallOutcome = outcome
	res.MarkedBy.SetValid(staffID)
	res.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateResult(ctx, res)
}

func (svc *service) Results(ctx context.Context, assignmentID string) ([]Result, error) {
	return svc.repo.QueryResults(ctx, assignmentID)
}

// autoScore awards full marks for choice answers matching the key. Free-text
// variants carry no key and are left for the moderation pass.
func autoScore(questions []Question, answers map[string]string) ScoreMap {
	scores := make(ScoreMap)
	for _, q := range questions {
		if !q.Type.HasOptions() || q.CorrectAnswer == "" {
			continue
		}
		if answers[q.ID] == q.CorrectAnswer {
			scores[q.ID] = q.Mark
		}
	}
	return scores
}

func ensureQuestionIDs(questions []Question) []Question {
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = uuid.New().String()
		}
	}
	return questions
}

// randomPassword returns a short shared password; base32 keeps it typeable.
func randomPassword() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)[:passwordLen], nil
}
