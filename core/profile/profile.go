// Package profile serves the read-only per-user projections of the student app:
// inbox notifications, classes, lessons and documents.
package profile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/application"
)

type (
	Notification struct {
		ID          string    `json:"id"`
		UserID      string    `json:"-"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Date        time.Time `json:"date"` // UTC
	}

	Class struct {
		ID         string `json:"id" yaml:"-"`
		UserID     string `json:"-" yaml:"-"`
		Subject    string `json:"subject" yaml:"subject"`
		Instructor string `json:"instructor" yaml:"instructor"`
		Time       string `json:"time" yaml:"time"`
	}

	Lesson struct {
		ID     string `json:"id" yaml:"-"`
		UserID string `json:"-" yaml:"-"`
		Name   string `json:"name" yaml:"name"`
		Week   string `json:"week" yaml:"week"`
	}

	Repository interface {
		AddNotification(ctx context.Context, n Notification) error
		QueryNotifications(ctx context.Context, userID string) ([]Notification, error)
		AddClasses(ctx context.Context, classes ...Class) error
		QueryClasses(ctx context.Context, userID string) ([]Class, error)
		AddLessons(ctx context.Context, lessons ...Lesson) error
		QueryLessons(ctx context.Context, userID string) ([]Lesson, error)
	}

	Applications interface {
		GetApplicationByStudent(ctx context.Context, studentID string) (application.Application, error)
	}

	Service struct {
		repo Repository
		apps Applications
	}
)

func NewService(repo Repository, apps Applications) *Service {
	return &Service{repo: repo, apps: apps}
}

// Notify appends a notification to the inbox of userID.
func (svc *Service) Notify(ctx context.Context, userID, title, description string) error {
	n := Notification{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       core.CleanString(title),
		Description: core.CleanString(description),
		Date:        core.Now(),
	}
	return errors.Wrap(svc.repo.AddNotification(ctx, n), "adding notification")
}

// Notifications are returned newest first.
func (svc *Service) Notifications(ctx context.Context, userID string) ([]Notification, error) {
	ns, err := svc.repo.QueryNotifications(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return ns, nil
}

func (svc *Service) Classes(ctx context.Context, userID string) ([]Class, error) {
	cs, err := svc.repo.QueryClasses(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return cs, nil
}

func (svc *Service) Lessons(ctx context.Context, userID string) ([]Lesson, error) {
	ls, err := svc.repo.QueryLessons(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	return ls, nil
}

// Documents lists the documents of the user's application; empty when none was submitted.
func (svc *Service) Documents(ctx context.Context, userID string) ([]application.Document, error) {
	app, err := svc.apps.GetApplicationByStudent(ctx, userID)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return []application.Document{}, nil
		}
		return nil, errors.Wrap(err, "finding application")
	}
	return app.DocumentList(), nil
}

// AddClasses assigns classes to userID, replacing any ID.
func (svc *Service) AddClasses(ctx context.Context, userID string, classes ...Class) error {
	for i := range classes {
		classes[i].ID = uuid.NewString()
		classes[i].UserID = userID
	}
	return errors.Wrap(svc.repo.AddClasses(ctx, classes...), "adding classes")
}

// AddLessons assigns lessons to userID, replacing any ID.
func (svc *Service) AddLessons(ctx context.Context, userID string, lessons ...Lesson) error {
	for i := range lessons {
		lessons[i].ID = uuid.NewString()
		lessons[i].UserID = userID
	}
	return errors.Wrap(svc.repo.AddLessons(ctx, lessons...), "adding lessons")
}
