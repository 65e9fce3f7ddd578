package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/storage/database"
)

const applicationColumns = `id, student_id, student_name, email, status, documents, submitted_at, updated_at`

var applicationOrderings = map[string]string{
	"submittedDate": "submitted_at",
	"updatedAt":     "updated_at",
	"studentName":   "student_name",
	"status":        "status",
}

type applicationRow struct {
	ID          string `db:"id"`
	StudentID   string `db:"student_id"`
	StudentName string `db:"student_name"`
	Email       string `db:"email"`
	Status      string `db:"status"`
	Documents   string `db:"documents"` // JSON array
	SubmittedAt int64  `db:"submitted_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

func newApplicationRow(app application.Application) (applicationRow, error) {
	docs := app.Documents
	if docs == nil {
		docs = []string{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return applicationRow{}, err
	}
	return applicationRow{
		ID:          app.ID,
		StudentID:   app.StudentID,
		StudentName: app.StudentName,
		Email:       app.Email,
		Status:      string(app.Status),
		Documents:   string(data),
		SubmittedAt: core.ToMillis(app.SubmittedDate),
		UpdatedAt:   core.ToMillis(app.UpdatedAt),
	}, nil
}

func (row applicationRow) toApplication() (application.Application, error) {
	docs := make([]string, 0)
	if row.Documents != "" {
		if err := json.Unmarshal([]byte(row.Documents), &docs); err != nil {
			return application.Application{}, err
		}
	}
	return application.Application{
		ID:            row.ID,
		StudentID:     row.StudentID,
		StudentName:   row.StudentName,
		Email:         row.Email,
		Status:        application.Status(row.Status),
		Documents:     docs,
		SubmittedDate: core.FromMillis(row.SubmittedAt),
		UpdatedAt:     core.FromMillis(row.UpdatedAt),
	}, nil
}

type applicationRepository struct {
	db *sqlx.DB
}

var _ application.Repository = (*applicationRepository)(nil)

func NewApplicationRepository(db *sqlx.DB) *applicationRepository {
	return &applicationRepository{db: db}
}

func (repo *applicationRepository) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	row, err := newApplicationRow(app)
	if err != nil {
		return application.Application{}, core.NewStorageError("encoding documents", err)
	}
	q := `INSERT INTO applications (` + applicationColumns + `)
		VALUES (:id, :student_id, :student_name, :email, :status, :documents, :submitted_at, :updated_at)`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		if database.IsUniqueViolation(err) {
			return application.Application{}, application.ErrAlreadyExists
		}
		return application.Application{}, core.NewStorageError("inserting application", err)
	}
	return app, nil
}

func (repo *applicationRepository) getApplication(ctx context.Context, where string, arg interface{}) (application.Application, error) {
	var row applicationRow
	q := repo.db.Rebind(`SELECT ` + applicationColumns + ` FROM applications WHERE ` + where)
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if database.IsNoRows(err) {
			return application.Application{}, application.ErrNotFound
		}
		return application.Application{}, core.NewStorageError("selecting application", err)
	}
	app, err := row.toApplication()
	if err != nil {
		return application.Application{}, core.NewStorageError("decoding documents", err)
	}
	return app, nil
}

func (repo *applicationRepository) GetApplication(ctx context.Context, id string) (application.Application, error) {
	if id == "" {
		return application.Application{}, application.ErrNotFound
	}
	return repo.getApplication(ctx, "id = ?", id)
}

func (repo *applicationRepository) GetApplicationByStudent(ctx context.Context, studentID string) (application.Application, error) {
	if studentID == "" {
		return application.Application{}, application.ErrNotFound
	}
	return repo.getApplication(ctx, "student_id = ?", studentID)
}

func (repo *applicationRepository) QueryAllApplications(ctx context.Context, orderings []core.DBOrdering) ([]application.Application, error) {
	orderBy := core.OrderByClause(orderings, applicationOrderings, "submitted_at DESC")
	var rows []applicationRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+applicationColumns+` FROM applications ORDER BY `+orderBy+`, id`); err != nil {
		return nil, core.NewStorageError("selecting applications", err)
	}
	apps := make([]application.Application, 0, len(rows))
	for _, row := range rows {
		app, err := row.toApplication()
		if err != nil {
			return nil, core.NewStorageError("decoding documents", err)
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func (repo *applicationRepository) CountApplicationsByStatus(ctx context.Context) (application.Stats, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := repo.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM applications GROUP BY status`); err != nil {
		return application.Stats{}, core.NewStorageError("counting applications", err)
	}
	var stats application.Stats
	for _, row := range rows {
		stats.Add(application.Status(row.Status), row.Count)
	}
	return stats, nil
}

// TransitionStatus is a compare-and-set on status: of concurrent callers only one can match the row.
func (repo *applicationRepository) TransitionStatus(
	ctx context.Context,
	id string,
	to application.Status,
	from []application.Status,
	at time.Time,
) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	fromStatuses := make([]string, 0, len(from))
	for _, st := range from {
		fromStatuses = append(fromStatuses, string(st))
	}
	q, args, err := sqlx.In(`UPDATE applications SET status = ?, updated_at = ? WHERE id = ? AND status IN (?)`,
		string(to), core.ToMillis(at), id, fromStatuses)
	if err != nil {
		return false, core.NewStorageError("building status update", err)
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return false, core.NewStorageError("updating application status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, core.NewStorageError("updating application status", err)
	}
	return n == 1, nil
}
