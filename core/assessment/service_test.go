package assessment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/elimuhq/elimu/core"
)

type memRepo struct {
	assignments map[string]Assignment
	results     map[string]Result
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		assignments: make(map[string]Assignment),
		results:     make(map[string]Result),
	}
}

func (repo *memRepo) CreateAssignment(_ context.Context, a Assignment) (Assignment, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	repo.assignments[a.ID] = a
	return a, nil
}

func (repo *memRepo) GetAssignmentByID(_ context.Context, id string) (Assignment, error) {
	a, ok := repo.assignments[id]
	if !ok {
		return Assignment{}, ErrAssignmentNotFound
	}
	return a, nil
}

func (repo *memRepo) QueryAssignments(_ context.Context, _ *AssignmentFilter, _ ...core.DBOrdering) ([]Assignment, error) {
	out := make([]Assignment, 0, len(repo.assignments))
	for _, a := range repo.assignments {
		out = append(out, a)
	}
	return out, nil
}

func (repo *memRepo) UpdateAssignment(_ context.Context, a Assignment) (Assignment, error) {
	if _, ok := repo.assignments[a.ID]; !ok {
		return Assignment{}, ErrAssignmentNotFound
	}
	repo.assignments[a.ID] = a
	return a, nil
}

func (repo *memRepo) SetAssignmentPassword(_ context.Context, id, password string, generatedAt time.Time) (Assignment, error) {
	a, ok := repo.assignments[id]
	if !ok {
		return Assignment{}, ErrAssignmentNotFound
	}
	a.Password = password
	a.PasswordGeneratedAt = generatedAt
	repo.assignments[id] = a
	return a, nil
}

func (repo *memRepo) DeleteAssignmentsByID(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(repo.assignments, id)
	}
	return nil
}

func (repo *memRepo) CreateResult(_ context.Context, res Result) (Result, error) {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	repo.results[res.ID] = res
	return res, nil
}

func (repo *memRepo) GetResultByID(_ context.Context, id string) (Result, error) {
	res, ok := repo.results[id]
	if !ok {
		return Result{}, ErrResultNotFound
	}
	return res, nil
}

func (repo *memRepo) GetResultByStatus(_ context.Context, assignmentID, studentID string, statuses ...string) (Result, error) {
	var found *Result
	for _, res := range repo.results {
		if res.AssignmentID != assignmentID || res.StudentID != studentID {
			continue
		}
		for _, status := range statuses {
			if res.Status == status {
				res := res
				if found == nil || res.DateTaken.After(found.DateTaken) {
					found = &res
				}
			}
		}
	}
	if found == nil {
		return Result{}, ErrResultNotFound
	}
	return *found, nil
}

func (repo *memRepo) QueryResults(_ context.Context, assignmentID string) ([]Result, error) {
	var out []Result
	for _, res := range repo.results {
		if res.AssignmentID == assignmentID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (repo *memRepo) UpdateResult(_ context.Context, res Result) (Result, error) {
	curr, ok := repo.results[res.ID]
	if !ok {
		return Result{}, ErrResultNotFound
	}
	if curr.Version != res.Version {
		return Result{}, ErrVersionConflict
	}
	res.Version++
	repo.results[res.ID] = res
	return res, nil
}

func createAssignment(t *testing.T, repo *memRepo, typ string, dur time.Duration) Assignment {
	t.Helper()
	a, err := repo.CreateAssignment(context.Background(), Assignment{
		ID:            uuid.New().String(),
		Title:         "Unit Standard 117927",
		Type:          typ,
		Duration:      dur,
		AvailableFrom: time.Now().UTC().Add(-time.Hour),
		Questions: []Question{
			{ID: "q1", Text: "Q1", Type: QuestionShortAnswer, Mark: 20},
			{ID: "q2", Text: "Q2", Type: QuestionShortAnswer, Mark: 15},
			{ID: "q3", Text: "Q3", Type: QuestionShortAnswer, Mark: 10},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return a
}

func TestValidatePassword(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	passwordTTL = 20 * time.Minute
	defer func() { nowFunc = time.Now }()

	a := createAssignment(t, repo, TypeTest, 30*time.Minute)
	a, err := svc.GeneratePassword(ctx, a.ID)
	if err != nil {
		t.Fatalf("GeneratePassword() failed: %v", err)
	}
	if a.Password == "" || a.PasswordGeneratedAt.IsZero() {
		t.Fatalf("GeneratePassword() did not stamp password: %+v", a)
	}

	tests := []struct {
		name    string
		id      string
		pwd     string
		elapsed time.Duration
		wantOK  bool
		wantMsg string
	}{
		{name: "valid within window", id: a.ID, pwd: a.Password, elapsed: 5 * time.Minute, wantOK: true, wantMsg: "ok"},
		{name: "valid on the boundary", id: a.ID, pwd: a.Password, elapsed: 20 * time.Minute, wantOK: true, wantMsg: "ok"},
		{name: "exact match but expired", id: a.ID, pwd: a.Password, elapsed: 21 * time.Minute, wantMsg: "invalid or expired password"},
		{name: "wrong password", id: a.ID, pwd: "NOPE1234", elapsed: time.Minute, wantMsg: "invalid or expired password"},
		{name: "malformed id", id: "not-a-uuid", pwd: a.Password, wantMsg: "Invalid assignment ID"},
		{name: "unknown id", id: uuid.New().String(), pwd: a.Password, wantMsg: "Assignment not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nowFunc = func() time.Time { return a.PasswordGeneratedAt.Add(tt.elapsed) }
			check, err := svc.ValidatePassword(ctx, tt.id, tt.pwd)
			if err != nil {
				t.Fatalf("ValidatePassword() error = %v", err)
			}
			if check.Valid != tt.wantOK {
				t.Errorf("Valid = %v; want %v", check.Valid, tt.wantOK)
			}
			if check.Message != tt.wantMsg {
				t.Errorf("Message = %q; want %q", check.Message, tt.wantMsg)
			}
			if !tt.wantOK && check.Assignment != nil {
				t.Error("invalid attempt leaked the assignment payload")
			}
			if tt.wantOK && (check.Assignment == nil || check.Assignment.Duration != a.Duration) {
				t.Errorf("valid attempt must return duration/availability: %+v", check.Assignment)
			}
		})
	}
}

func TestVerifyStatus(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	student := uuid.New().String()
	defer func() { nowFunc = time.Now }()
	nowFunc = time.Now

	a := createAssignment(t, repo, TypeTest, 30*time.Minute)

	t.Run("no results", func(t *testing.T) {
		status, err := svc.VerifyStatus(ctx, a.ID, student)
		if err != nil {
			t.Fatalf("VerifyStatus() error = %v", err)
		}
		if status.IsCompleted || status.HasIncompleteAttempt {
			t.Errorf("VerifyStatus() = %+v; want both false", status)
		}
	})

	t.Run("fresh in-progress, password not regenerated", func(t *testing.T) {
		res, err := svc.StartAttempt(ctx, a.ID, student)
		if err != nil {
			t.Fatalf("StartAttempt() failed: %v", err)
		}
		status, err := svc.VerifyStatus(ctx, a.ID, student)
		if err != nil {
			t.Fatalf("VerifyStatus() error = %v", err)
		}
		if status.HasIncompleteAttempt {
			t.Errorf("VerifyStatus() = %+v; stale flag requires a newer password", status)
		}
		_ = res
	})

	t.Run("stale in-progress after regeneration", func(t *testing.T) {
		if _, err := svc.GeneratePassword(ctx, a.ID); err != nil {
			t.Fatalf("GeneratePassword() failed: %v", err)
		}
		status, err := svc.VerifyStatus(ctx, a.ID, student)
		if err != nil {
			t.Fatalf("VerifyStatus() error = %v", err)
		}
		if !status.HasIncompleteAttempt {
			t.Errorf("VerifyStatus() = %+v; want HasIncompleteAttempt", status)
		}
	})

	t.Run("completed blocks regardless of regeneration", func(t *testing.T) {
		res, err := repo.GetResultByStatus(ctx, a.ID, student, StatusInProgress)
		if err != nil {
			t.Fatalf("GetResultByStatus() failed: %v", err)
		}
		if _, err = svc.SubmitAttempt(ctx, res.ID, map[string]string{"q1": "answer"}); err != nil {
			t.Fatalf("SubmitAttempt() failed: %v", err)
		}
		if _, err = svc.GeneratePassword(ctx, a.ID); err != nil {
			t.Fatalf("GeneratePassword() failed: %v", err)
		}

		status, err := svc.VerifyStatus(ctx, a.ID, student)
		if err != nil {
			t.Fatalf("VerifyStatus() error = %v", err)
		}
		if !status.IsCompleted {
			t.Errorf("VerifyStatus() = %+v; want IsCompleted", status)
		}
		if _, err = svc.StartAttempt(ctx, a.ID, student); err != ErrAlreadyCompleted {
			t.Errorf("StartAttempt() error = %v; want %v", err, ErrAlreadyCompleted)
		}
	})
}

func TestStartAttempt_resume(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	student := uuid.New().String()
	defer func() { nowFunc = time.Now }()
	nowFunc = time.Now

	a := createAssignment(t, repo, TypeTest, 30*time.Minute)

	first, err := svc.StartAttempt(ctx, a.ID, student)
	if err != nil {
		t.Fatalf("StartAttempt() failed: %v", err)
	}

	// second start without a newer password is rejected
	if _, err = svc.StartAttempt(ctx, a.ID, student); err != ErrAttemptInProgress {
		t.Fatalf("StartAttempt() error = %v; want %v", err, ErrAttemptInProgress)
	}

	// the stale-password rule authorizes exactly one resume
	nowFunc = func() time.Time { return time.Now().Add(time.Minute) }
	if _, err = svc.GeneratePassword(ctx, a.ID); err != nil {
		t.Fatalf("GeneratePassword() failed: %v", err)
	}
	nowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	resumed, err := svc.StartAttempt(ctx, a.ID, student)
	if err != nil {
		t.Fatalf("StartAttempt() resume failed: %v", err)
	}
	if resumed.ID != first.ID {
		t.Errorf("resume created a second result: %s != %s", resumed.ID, first.ID)
	}
	if !resumed.DateTaken.After(first.DateTaken) {
		t.Error("resume must restamp DateTaken")
	}

	// and only one: the restamped DateTaken is no longer stale
	if _, err = svc.StartAttempt(ctx, a.ID, student); err != ErrAttemptInProgress {
		t.Errorf("StartAttempt() error = %v; want %v", err, ErrAttemptInProgress)
	}
}

func TestSubmitAttempt_window(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	student := uuid.New().String()
	defer func() { nowFunc = time.Now }()
	nowFunc = time.Now

	a := createAssignment(t, repo, TypeTest, 30*time.Minute)
	res, err := svc.StartAttempt(ctx, a.ID, student)
	if err != nil {
		t.Fatalf("StartAttempt() failed: %v", err)
	}

	t.Run("late submission", func(t *testing.T) {
		nowFunc = func() time.Time { return res.DateTaken.Add(a.Duration + submissionGrace + time.Second) }
		if _, err := svc.SubmitAttempt(ctx, res.ID, nil); err != ErrTimeExpired {
			t.Errorf("SubmitAttempt() error = %v; want %v", err, ErrTimeExpired)
		}
	})

	t.Run("within window", func(t *testing.T) {
		nowFunc = func() time.Time { return res.DateTaken.Add(10 * time.Minute) }
		submitted, err := svc.SubmitAttempt(ctx, res.ID, map[string]string{"q1": "42"})
		if err != nil {
			t.Fatalf("SubmitAttempt() failed: %v", err)
		}
		if submitted.Status != StatusSubmitted {
			t.Errorf("Status = %s; want %s", submitted.Status, StatusSubmitted)
		}
	})

	t.Run("no backward transition", func(t *testing.T) {
		if _, err := svc.SubmitAttempt(ctx, res.ID, nil); err != ErrInvalidTransition {
			t.Errorf("SubmitAttempt() error = %v; want %v", err, ErrInvalidTransition)
		}
	})
}

func TestSubmitAttempt_autoScore(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	defer func() { nowFunc = time.Now }()
	nowFunc = time.Now

	a, err := repo.CreateAssignment(ctx, Assignment{
		ID:            uuid.New().String(),
		Title:         "Unit Standard 117927",
		Type:          TypeTest,
		Duration:      30 * time.Minute,
		AvailableFrom: time.Now().UTC().Add(-time.Hour),
		Questions: []Question{
			{ID: "q1", Text: "Q1", Type: QuestionMultipleChoice, CorrectAnswer: "b", Mark: 20,
				Options: []Option{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}}},
			{ID: "q2", Text: "Q2", Type: QuestionTrueFalse, CorrectAnswer: "true", Mark: 10,
				Options: []Option{{ID: "true", Text: "True"}, {ID: "false", Text: "False"}}},
			{ID: "q3", Text: "Q3", Type: QuestionShortAnswer, Mark: 15},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}

	res, err := svc.StartAttempt(ctx, a.ID, uuid.New().String())
	if err != nil {
		t.Fatalf("StartAttempt() failed: %v", err)
	}
	submitted, err := svc.SubmitAttempt(ctx, res.ID, map[string]string{
		"q1": "b",     // correct
		"q2": "false", // wrong
		"q3": "free text, staff must mark it",
	})
	if err != nil {
		t.Fatalf("SubmitAttempt() failed: %v", err)
	}

	if got := submitted.Scores["q1"]; got != 20 {
		t.Errorf("Scores[q1] = %d; want 20", got)
	}
	if _, ok := submitted.Scores["q2"]; ok {
		t.Error("wrong choice answer must not score")
	}
	if _, ok := submitted.Scores["q3"]; ok {
		t.Error("free-text answer must not auto-score")
	}

	// marking records moderated scores without touching the raw ones
	marked, err := svc.SubmitScore(ctx, submitted.ID, ScoreMap{"q1": 20, "q3": 15}, uuid.New().String(), TypeTest)
	if err != nil {
		t.Fatalf("SubmitScore() failed: %v", err)
	}
	if got := marked.Scores["q1"]; got != 20 {
		t.Errorf("raw Scores[q1] after marking = %d; want 20", got)
	}
	if len(marked.Scores) != 1 {
		t.Errorf("raw Scores = %v; want the auto-scored entry only", marked.Scores)
	}
	if marked.ModeratedScores.Total() != 35 {
		t.Errorf("ModeratedScores total = %d; want 35", marked.ModeratedScores.Total())
	}
}

func TestSubmitScore(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	staff := uuid.New().String()
	defer func() { nowFunc = time.Now }()
	nowFunc = time.Now

	submittedResult := func(t *testing.T, typ string) (Assignment, Result) {
		a := createAssignment(t, repo, typ, 30*time.Minute)
		res, err := svc.StartAttempt(ctx, a.ID, uuid.New().String())
		if err != nil {
			t.Fatalf("StartAttempt() failed: %v", err)
		}
		res, err = svc.SubmitAttempt(ctx, res.ID, map[string]string{"q1": "a", "q2": "b", "q3": "c"})
		if err != nil {
			t.Fatalf("SubmitAttempt() failed: %v", err)
		}
		return a, res
	}

	t.Run("competent test", func(t *testing.T) {
		_, res := submittedResult(t, TypeTest)
		scores := ScoreMap{"q1": 20, "q2": 15, "q3": 10}

		marked, err := svc.SubmitScore(ctx, res.ID, scores, staff, TypeTest)
		if err != nil {
			t.Fatalf("SubmitScore() failed: %v", err)
		}
		if !marked.TestScore.Valid || marked.TestScore.Int != 45 {
			t.Errorf("TestScore = %+v; want 45", marked.TestScore)
		}
		if marked.Percent != 45 {
			t.Errorf("Percent = %d; want 45", marked.Percent)
		}
		if marked.OverallOutcome != OutcomeCompetent {
			t.Errorf("OverallOutcome = %q; want %q", marked.OverallOutcome, OutcomeCompetent)
		}
		if marked.Status != StatusMarked {
			t.Errorf("Status = %q; want %q", marked.Status, StatusMarked)
		}
		if !marked.MarkedBy.Valid || marked.MarkedBy.String != staff {
			t.Errorf("MarkedBy = %+v; want %s", marked.MarkedBy, staff)
		}
	})

	t.Run("not yet competent", func(t *testing.T) {
		_, res := submittedResult(t, TypeTest)
		marked, err := svc.SubmitScore(ctx, res.ID, ScoreMap{"q1": 20, "q2": 15}, staff, TypeTest)
		if err != nil {
			t.Fatalf("SubmitScore() failed: %v", err)
		}
		if marked.Percent != 35 || marked.OverallOutcome != OutcomeNotYetCompetent {
			t.Errorf("got percent=%d outcome=%q; want 35 / %q", marked.Percent, marked.OverallOutcome, OutcomeNotYetCompetent)
		}
	})

	t.Run("task type fills task score", func(t *testing.T) {
		_, res := submittedResult(t, TypeTask)
		marked, err := svc.SubmitScore(ctx, res.ID, ScoreMap{"q1": 50}, staff, TypeTask)
		if err != nil {
			t.Fatalf("SubmitScore() failed: %v", err)
		}
		if !marked.TaskScore.Valid || marked.TaskScore.Int != 50 {
			t.Errorf("TaskScore = %+v; want 50", marked.TaskScore)
		}
		if marked.TestScore.Valid {
			t.Error("TestScore must stay unset for a task")
		}
	})

	t.Run("re-marking overwrites terminal fields", func(t *testing.T) {
		_, res := submittedResult(t, TypeTest)
		marked, err := svc.SubmitScore(ctx, res.ID, ScoreMap{"q1": 10}, staff, TypeTest)
		if err != nil {
			t.Fatalf("SubmitScore() failed: %v", err)
		}
		remarked, err := svc.SubmitScore(ctx, marked.ID, ScoreMap{"q1": 60}, staff, TypeTest)
		if err != nil {
			t.Fatalf("SubmitScore() re-mark failed: %v", err)
		}
		if remarked.TestScore.Int != 60 || remarked.OverallOutcome != OutcomeCompetent {
			t.Errorf("re-mark not applied: %+v", remarked)
		}
	})

	t.Run("marking an in-progress attempt", func(t *testing.T) {
		a := createAssignment(t, repo, TypeTest, 30*time.Minute)
		res, err := svc.StartAttempt(ctx, a.ID, uuid.New().String())
		if err != nil {
			t.Fatalf("StartAttempt() failed: %v", err)
		}
		if _, err := svc.SubmitScore(ctx, res.ID, ScoreMap{"q1": 10}, staff, TypeTest); err != ErrInvalidTransition {
			t.Errorf("SubmitScore() error = %v; want %v", err, ErrInvalidTransition)
		}
	})

	t.Run("moderated scores round-trip", func(t *testing.T) {
		_, res := submittedResult(t, TypeTest)
		scores := ScoreMap{"q1": 20, "q2": 15, "q3": 10}
		marked, err := svc.SubmitScore(ctx, res.ID, scores, staff, TypeTest)
		if err != nil {
			t.Fatalf("SubmitScore() failed: %v", err)
		}

		data, err := json.Marshal(marked.ModeratedScores)
		if err != nil {
			t.Fatalf("marshalling moderated scores: %v", err)
		}
		var back ScoreMap
		if err = json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshalling moderated scores: %v", err)
		}
		if len(back) != len(scores) {
			t.Fatalf("round-trip lost keys: %v", back)
		}
		for k, v := range scores {
			if back[k] != v {
				t.Errorf("round-trip mismatch for %s: %d != %d", k, back[k], v)
			}
		}
	})
}
