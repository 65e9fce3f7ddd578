package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/profile"
)

type notificationRow struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	CreatedAt   int64  `db:"created_at"`
}

type profileRepository struct {
	db *sqlx.DB
}

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository(db *sqlx.DB) *profileRepository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) AddNotification(ctx context.Context, n profile.Notification) error {
	row := notificationRow{
		ID:          n.ID,
		UserID:      n.UserID,
		Title:       n.Title,
		Description: n.Description,
		CreatedAt:   core.ToMillis(n.Date),
	}
	q := `INSERT INTO user_notifications (id, user_id, title, description, created_at)
		VALUES (:id, :user_id, :title, :description, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return core.NewStorageError("inserting notification", err)
	}
	return nil
}

func (repo *profileRepository) QueryNotifications(ctx context.Context, userID string) ([]profile.Notification, error) {
	var rows []notificationRow
	q := repo.db.Rebind(`SELECT id, user_id, title, description, created_at FROM user_notifications
		WHERE user_id = ? ORDER BY created_at DESC, id`)
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, core.NewStorageError("selecting notifications", err)
	}
	ns := make([]profile.Notification, 0, len(rows))
	for _, row := range rows {
		ns = append(ns, profile.Notification{
			ID:          row.ID,
			UserID:      row.UserID,
			Title:       row.Title,
			Description: row.Description,
			Date:        core.FromMillis(row.CreatedAt),
		})
	}
	return ns, nil
}

func (repo *profileRepository) AddClasses(ctx context.Context, classes ...profile.Class) error {
	if len(classes) == 0 {
		return nil
	}
	q := `INSERT INTO user_classes (id, user_id, subject, instructor, time) VALUES (:id, :user_id, :subject, :instructor, :time)`
	return repo.insertAll(ctx, "inserting classes", q, len(classes), func(i int) interface{} {
		c := classes[i]
		return map[string]interface{}{
			"id": c.ID, "user_id": c.UserID, "subject": c.Subject, "instructor": c.Instructor, "time": c.Time,
		}
	})
}

func (repo *profileRepository) QueryClasses(ctx context.Context, userID string) ([]profile.Class, error) {
	classes := make([]profile.Class, 0)
	q := repo.db.Rebind(`SELECT id, user_id AS userid, subject, instructor, time FROM user_classes WHERE user_id = ? ORDER BY subject, id`)
	if err := repo.db.SelectContext(ctx, &classes, q, userID); err != nil {
		return nil, core.NewStorageError("selecting classes", err)
	}
	return classes, nil
}

func (repo *profileRepository) AddLessons(ctx context.Context, lessons ...profile.Lesson) error {
	if len(lessons) == 0 {
		return nil
	}
	q := `INSERT INTO user_lessons (id, user_id, name, week) VALUES (:id, :user_id, :name, :week)`
	return repo.insertAll(ctx, "inserting lessons", q, len(lessons), func(i int) interface{} {
		l := lessons[i]
		return map[string]interface{}{"id": l.ID, "user_id": l.UserID, "name": l.Name, "week": l.Week}
	})
}

func (repo *profileRepository) QueryLessons(ctx context.Context, userID string) ([]profile.Lesson, error) {
	lessons := make([]profile.Lesson, 0)
	q := repo.db.Rebind(`SELECT id, user_id AS userid, name, week FROM user_lessons WHERE user_id = ? ORDER BY week, name, id`)
	if err := repo.db.SelectContext(ctx, &lessons, q, userID); err != nil {
		return nil, core.NewStorageError("selecting lessons", err)
	}
	return lessons, nil
}

// insertAll runs q once per item inside a single transaction.
func (repo *profileRepository) insertAll(ctx context.Context, op, q string, n int, arg func(i int) interface{}) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.NewStorageError(op, err)
	}
	for i := 0; i < n; i++ {
		if _, err = tx.NamedExecContext(ctx, q, arg(i)); err != nil {
			_ = tx.Rollback()
			return core.NewStorageError(op, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return core.NewStorageError(op, err)
	}
	return nil
}
