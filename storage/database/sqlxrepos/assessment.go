package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/assessment"
)

type assignmentRow struct {
	ID                  string         `db:"id"`
	Title               string         `db:"title"`
	Type                string         `db:"type"`
	Duration            time.Duration  `db:"duration"`
	AvailableFrom       time.Time      `db:"available_from"`
	AvailableUntil      null.Time      `db:"available_until"`
	CampusIDs           pq.StringArray `db:"campus_ids"`
	IntakeGroupIDs      pq.StringArray `db:"intake_group_ids"`
	Questions           []byte         `db:"questions"`
	Password            string         `db:"password"`
	PasswordGeneratedAt sql.NullTime   `db:"password_generated_at"`
	CreatedBy           string         `db:"created_by"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (row assignmentRow) toAssignment() (assessment.Assignment, error) {
	a := assessment.Assignment{
		ID:             row.ID,
		Title:          row.Title,
		Type:           row.Type,
		Duration:       row.Duration,
		AvailableFrom:  row.AvailableFrom,
		AvailableUntil: row.AvailableUntil,
		CampusIDs:      row.CampusIDs,
		IntakeGroupIDs: row.IntakeGroupIDs,
		Password:       row.Password,
		CreatedBy:      row.CreatedBy,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.PasswordGeneratedAt.Valid {
		a.PasswordGeneratedAt = row.PasswordGeneratedAt.Time
	}
	if err := json.Unmarshal(row.Questions, &a.Questions); err != nil {
		return assessment.Assignment{}, errors.Wrap(err, "decoding questions")
	}
	return a, nil
}

func newAssignmentRow(a assessment.Assignment) (assignmentRow, error) {
	questions, err := json.Marshal(a.Questions)
	if err != nil {
		return assignmentRow{}, errors.Wrap(err, "encoding questions")
	}
	row := assignmentRow{
		ID:             a.ID,
		Title:          a.Title,
		Type:           a.Type,
		Duration:       a.Duration,
		AvailableFrom:  a.AvailableFrom,
		AvailableUntil: a.AvailableUntil,
		CampusIDs:      a.CampusIDs,
		IntakeGroupIDs: a.IntakeGroupIDs,
		Questions:      questions,
		Password:       a.Password,
		CreatedBy:      a.CreatedBy,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if !a.PasswordGeneratedAt.IsZero() {
		row.PasswordGeneratedAt = sql.NullTime{Time: a.PasswordGeneratedAt, Valid: true}
	}
	return row, nil
}

type resultRow struct {
	ID              string      `db:"id"`
	AssignmentID    string      `db:"assignment_id"`
	StudentID       string      `db:"student_id"`
	Status          string      `db:"status"`
	DateTaken       time.Time   `db:"date_taken"`
	Answers         []byte      `db:"answers"`
	Scores          []byte      `db:"scores"`
	ModeratedScores []byte      `db:"moderated_scores"`
	TestScore       null.Int    `db:"test_score"`
	TaskScore       null.Int    `db:"task_score"`
	Percent         int         `db:"percent"`
	OverallOutcome  string      `db:"overall_outcome"`
	MarkedBy        null.String `db:"marked_by"`
	Version         int         `db:"version"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func (row resultRow) toResult() (assessment.Result, error) {
	res := assessment.Result{
		ID:             row.ID,
		AssignmentID:   row.AssignmentID,
		StudentID:      row.StudentID,
		Status:         row.Status,
		DateTaken:      row.DateTaken,
		TestScore:      row.TestScore,
		TaskScore:      row.TaskScore,
		Percent:        row.Percent,
		OverallOutcome: row.OverallOutcome,
		MarkedBy:       row.MarkedBy,
		Version:        row.Version,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Answers, &res.Answers); err != nil {
		return assessment.Result{}, errors.Wrap(err, "decoding answers")
	}
	if err := json.Unmarshal(row.Scores, &res.Scores); err != nil {
		return assessment.Result{}, errors.Wrap(err, "decoding scores")
	}
	if err := json.Unmarshal(row.ModeratedScores, &res.ModeratedScores); err != nil {
		return assessment.Result{}, errors.Wrap(err, "decoding moderated scores")
	}
	return res, nil
}

func newResultRow(res assessment.Result) (resultRow, error) {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return resultRow{}, errors.Wrap(err, "encoding answers")
	}
	scores, err := json.Marshal(res.Scores)
	if err != nil {
		return resultRow{}, errors.Wrap(err, "encoding scores")
	}
	moderated, err := json.Marshal(res.ModeratedScores)
	if err != nil {
		return resultRow{}, errors.Wrap(err, "encoding moderated scores")
	}
	return resultRow{
		ID:              res.ID,
		AssignmentID:    res.AssignmentID,
		StudentID:       res.StudentID,
		Status:          res.Status,
		DateTaken:       res.DateTaken,
		Answers:         answers,
		Scores:          scores,
		ModeratedScores: moderated,
		TestScore:       res.TestScore,
		TaskScore:       res.TaskScore,
		Percent:         res.Percent,
		OverallOutcome:  res.OverallOutcome,
		MarkedBy:        res.MarkedBy,
		Version:         res.Version,
		CreatedAt:       res.CreatedAt,
		UpdatedAt:       res.UpdatedAt,
	}, nil
}

const (
	assignmentColumns = `id, title, type, duration, available_from, available_until, campus_ids,
		intake_group_ids, questions, password, password_generated_at, created_by, created_at, updated_at`
	resultColumns = `id, assignment_id, student_id, status, date_taken, answers, scores,
		moderated_scores, test_score, task_score, percent, overall_outcome, marked_by, version,
		created_at, updated_at`
)

type assessmentRepository struct {
	db core.DB
}

var _ assessment.Repository = (*assessmentRepository)(nil)

func NewAssessmentRepository(db core.DB) *assessmentRepository {
	return &assessmentRepository{db: db}
}

func (repo assessmentRepository) CreateAssignment(ctx context.Context, a assessment.Assignment) (assessment.Assignment, error) {
	row, err := newAssignmentRow(a)
	if err != nil {
		return assessment.Assignment{}, err
	}
	_, err = repo.db.ExecContext(ctx,
		`INSERT INTO assignment (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		row.ID, row.Title, row.Type, row.Duration, row.AvailableFrom, row.AvailableUntil, row.CampusIDs,
		row.IntakeGroupIDs, row.Questions, row.Password, row.PasswordGeneratedAt, row.CreatedBy,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return assessment.Assignment{}, errors.Wrap(err, "creating assignment")
	}
	return a, nil
}

func (repo assessmentRepository) GetAssignmentByID(ctx context.Context, id string) (assessment.Assignment, error) {
	var row assignmentRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+assignmentColumns+` FROM assignment WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return assessment.Assignment{}, assessment.ErrAssignmentNotFound
		}
		return assessment.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return row.toAssignment()
}

func (repo assessmentRepository) QueryAssignments(ctx context.Context, filter *assessment.AssignmentFilter, ordering ...core.DBOrdering) ([]assessment.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignment`
	var conds []string
	var args []interface{}

	if filter != nil {
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			conds = append(conds, `title ILIKE `+placeholder(len(args)))
		}
		if filter.Type != "" {
			args = append(args, filter.Type)
			conds = append(conds, `type = `+placeholder(len(args)))
		}
		if filter.CampusID != "" {
			args = append(args, pq.Array([]string{filter.CampusID}))
			conds = append(conds, `campus_ids @> `+placeholder(len(args)))
		}
		if filter.IntakeGroupID != "" {
			args = append(args, pq.Array([]string{filter.IntakeGroupID}))
			conds = append(conds, `intake_group_ids @> `+placeholder(len(args)))
		}
		if !filter.AvailableFrom.IsZero() {
			args = append(args, filter.AvailableFrom)
			conds = append(conds, `available_from >= `+placeholder(len(args)))
		}
		if !filter.AvailableTo.IsZero() {
			args = append(args, filter.AvailableTo)
			conds = append(conds, `available_from <= `+placeholder(len(args)))
		}
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += orderByClause(ordering, "available_from DESC")

	var rows []assignmentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering assignments")
	}
	assignments := make([]assessment.Assignment, 0, len(rows))
	for _, row := range rows {
		a, err := row.toAssignment()
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

func (repo assessmentRepository) UpdateAssignment(ctx context.Context, a assessment.Assignment) (assessment.Assignment, error) {
	row, err := newAssignmentRow(a)
	if err != nil {
		return assessment.Assignment{}, err
	}
	res, err := repo.db.ExecContext(ctx,
		`UPDATE assignment SET title = $2, type = $3, duration = $4, available_from = $5,
			available_until = $6, campus_ids = $7, intake_group_ids = $8, questions = $9,
			updated_at = $10 WHERE id = $1`,
		row.ID, row.Title, row.Type, row.Duration, row.AvailableFrom, row.AvailableUntil,
		row.CampusIDs, row.IntakeGroupIDs, row.Questions, row.UpdatedAt,
	)
	if err != nil {
		return assessment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.Assignment{}, assessment.ErrAssignmentNotFound
	}
	return a, nil
}

func (repo assessmentRepository) SetAssignmentPassword(ctx context.Context, id, password string, generatedAt time.Time) (assessment.Assignment, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE assignment SET password = $2, password_generated_at = $3 WHERE id = $1`,
		id, password, generatedAt,
	)
	if err != nil {
		return assessment.Assignment{}, errors.Wrap(err, "setting assignment password")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.Assignment{}, assessment.ErrAssignmentNotFound
	}
	return repo.GetAssignmentByID(ctx, id)
}

func (repo assessmentRepository) DeleteAssignmentsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM assignment WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting assignments")
}

func (repo assessmentRepository) CreateResult(ctx context.Context, res assessment.Result) (assessment.Result, error) {
	row, err := newResultRow(res)
	if err != nil {
		return assessment.Result{}, err
	}
	_, err = repo.db.ExecContext(ctx,
		`INSERT INTO result (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		row.ID, row.AssignmentID, row.StudentID, row.Status, row.DateTaken, row.Answers,
		row.Scores, row.ModeratedScores, row.TestScore, row.TaskScore, row.Percent,
		row.OverallOutcome, row.MarkedBy, row.Version, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return assessment.Result{}, errors.Wrap(err, "creating result")
	}
	return res, nil
}

func (repo assessmentRepository) GetResultByID(ctx context.Context, id string) (assessment.Result, error) {
	var row resultRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+resultColumns+` FROM result WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return assessment.Result{}, assessment.ErrResultNotFound
		}
		return assessment.Result{}, errors.Wrap(err, "getting result")
	}
	return row.toResult()
}

func (repo assessmentRepository) GetResultByStatus(ctx context.Context, assignmentID, studentID string, statuses ...string) (assessment.Result, error) {
	var row resultRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+resultColumns+` FROM result
		WHERE assignment_id = $1 AND student_id = $2 AND status = ANY($3)
		ORDER BY date_taken DESC LIMIT 1`,
		assignmentID, studentID, pq.Array(statuses),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return assessment.Result{}, assessment.ErrResultNotFound
		}
		return assessment.Result{}, errors.Wrap(err, "getting result")
	}
	return row.toResult()
}

func (repo assessmentRepository) QueryResults(ctx context.Context, assignmentID string) ([]assessment.Result, error) {
	var rows []resultRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+resultColumns+` FROM result WHERE assignment_id = $1 ORDER BY date_taken DESC`, assignmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	results := make([]assessment.Result, 0, len(rows))
	for _, row := range rows {
		res, err := row.toResult()
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// UpdateResult only lands when Version is unchanged since the read; the update
// bumps it so any concurrent writer loses.
func (repo assessmentRepository) UpdateResult(ctx context.Context, res assessment.Result) (assessment.Result, error) {
	row, err := newResultRow(res)
	if err != nil {
		return assessment.Result{}, err
	}
	out, err := repo.db.ExecContext(ctx,
		`UPDATE result SET status = $2, date_taken = $3, answers = $4, scores = $5,
			moderated_scores = $6, test_score = $7, task_score = $8, percent = $9,
			overall_outcome = $10, marked_by = $11, version = version + 1, updated_at = $12
		WHERE id = $1 AND version = $13`,
		row.ID, row.Status, row.DateTaken, row.Answers, row.Scores, row.ModeratedScores,
		row.TestScore, row.TaskScore, row.Percent, row.OverallOutcome, row.MarkedBy,
		row.UpdatedAt, row.Version,
	)
	if err != nil {
		return assessment.Result{}, errors.Wrap(err, "updating result")
	}
	if n, _ := out.RowsAffected(); n == 0 {
		if _, err = repo.GetResultByID(ctx, res.ID); err != nil {
			return assessment.Result{}, err
		}
		return assessment.Result{}, assessment.ErrVersionConflict
	}
	res.Version++
	return res, nil
}
