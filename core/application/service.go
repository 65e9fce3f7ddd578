package application

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/activity"
	"github.com/trezcool/admissions/core/auth"
	"github.com/trezcool/admissions/core/notification"
	"github.com/trezcool/admissions/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewError(core.KindNotFound, "application not found")
	ErrAlreadyExists  = core.NewError(core.KindConflict, "an application already exists for this student")
	ErrAlreadyDecided = core.NewError(core.KindConflict, "application has already been decided")

	errUnknownStudent   = "unknown student"
	errStudentIDMissing = "this field is required"
)

type (
	Repository interface {
		// CreateApplication fails with ErrAlreadyExists when the student already has one.
		CreateApplication(ctx context.Context, app Application) (Application, error)
		GetApplication(ctx context.Context, id string) (Application, error)
		GetApplicationByStudent(ctx context.Context, studentID string) (Application, error)
		QueryAllApplications(ctx context.Context, orderings []core.DBOrdering) ([]Application, error)
		CountApplicationsByStatus(ctx context.Context) (Stats, error)
		// TransitionStatus sets status=to only if the current status is one of from.
		// changed is false when no row matched.
		TransitionStatus(ctx context.Context, id string, to Status, from []Status, at time.Time) (changed bool, err error)
	}

	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Notifier interface {
		Emit(userID string, evt notification.Event) int
	}

	ActivityLog interface {
		Append(typ, message string) activity.Entry
	}

	// Inbox stores the durable copy of a notification.
	Inbox interface {
		Notify(ctx context.Context, userID, title, description string) error
	}

	// Metrics counts status changes.
	Metrics interface {
		RecordTransition(status string)
	}

	Deps struct {
		Repo     Repository
		Users    Users
		Notifier Notifier
		Activity ActivityLog
		Inbox    Inbox
		MailSvc  core.EmailService
		Metrics  Metrics
		Logger   core.Logger
	}

	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

// Submit creates the pending application of a student.
// Students submit for themselves; admins must name the student.
func (svc *Service) Submit(ctx context.Context, requester auth.Claims, na NewApplication) (Application, error) {
	studentID := na.StudentID
	if requester.IsAdmin() {
		if studentID == "" {
			return Application{}, core.NewValidationError(nil, core.FieldError{Field: "studentId", Error: errStudentIDMissing})
		}
		student, err := svc.Users.GetByID(ctx, studentID)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return Application{}, core.NewValidationError(nil, core.FieldError{Field: "studentId", Error: errUnknownStudent})
			}
			return Application{}, errors.Wrap(err, "finding student")
		}
		if !student.IsStudent() {
			return Application{}, core.NewValidationError(nil, core.FieldError{Field: "studentId", Error: errUnknownStudent})
		}
	} else if studentID == "" {
		studentID = requester.UserID()
	}
	if err := auth.Authorize(requester, auth.SelfOrAdmin(studentID)); err != nil {
		return Application{}, err
	}

	docs := na.Documents
	if docs == nil {
		docs = []string{}
	}
	now := core.Now()
	app := Application{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		StudentName:   na.StudentName,
		Email:         na.Email,
		Status:        StatusPending,
		Documents:     docs,
		SubmittedDate: now,
		UpdatedAt:     now,
	}
	app, err := svc.Repo.CreateApplication(ctx, app)
	if err != nil {
		return Application{}, errors.Wrap(err, "creating application")
	}
	return app, nil
}

// MarkInReview moves a pending application to in_review.
func (svc *Service) MarkInReview(ctx context.Context, requester auth.Claims, id string) (Application, error) {
	return svc.transition(ctx, requester, id, StatusInReview)
}

// Approve is a no-op success when the application is already approved.
func (svc *Service) Approve(ctx context.Context, requester auth.Claims, id string) (Application, error) {
	return svc.transition(ctx, requester, id, StatusApproved)
}

// Reject is a no-op success when the application is already rejected.
func (svc *Service) Reject(ctx context.Context, requester auth.Claims, id string) (Application, error) {
	return svc.transition(ctx, requester, id, StatusRejected)
}

func (svc *Service) transition(ctx context.Context, requester auth.Claims, id string, to Status) (Application, error) {
	if err := auth.Authorize(requester, auth.AdminOnly()); err != nil {
		return Application{}, err
	}

	app, err := svc.Repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, errors.Wrap(err, "finding application")
	}
	if app.Status == to {
		return app, nil
	}
	if !app.Status.CanTransitionTo(to) {
		return app, ErrAlreadyDecided
	}

	now := core.Now()
	changed, err := svc.Repo.TransitionStatus(ctx, id, to, predecessors[to], now)
	if err != nil {
		return Application{}, errors.Wrap(err, "updating application status")
	}
	if !changed {
		// a concurrent request moved it first; only that request emits
		current, err := svc.Repo.GetApplication(ctx, id)
		if err != nil {
			return Application{}, errors.Wrap(err, "finding application")
		}
		if current.Status == to {
			return current, nil
		}
		return current, ErrAlreadyDecided
	}

	app.Status = to
	app.UpdatedAt = now
	svc.afterTransition(ctx, requester, app)
	return app, nil
}

// afterTransition runs the best-effort side effects of a status change.
// The status is already persisted; failures are only logged.
func (svc *Service) afterTransition(ctx context.Context, requester auth.Claims, app Application) {
	var typ, title string
	switch app.Status {
	case StatusInReview:
		typ, title = activity.TypeApplicationInReview, "Your application is under review"
	case StatusApproved:
		typ, title = activity.TypeApplicationApproved, "Your application has been approved"
	case StatusRejected:
		typ, title = activity.TypeApplicationRejected, "Your application has been rejected"
	}

	if svc.Metrics != nil {
		svc.Metrics.RecordTransition(string(app.Status))
	}
	if svc.Activity != nil {
		svc.Activity.Append(typ, fmt.Sprintf("%s marked the application of %s as %s",
			svc.actorName(ctx, requester), app.StudentName, app.Status))
	}
	if svc.Notifier != nil {
		svc.Notifier.Emit(app.StudentID, notification.NewStatusUpdate(app.StatusView()))
		svc.Notifier.Emit(app.StudentID, notification.NewAdhoc(title))
	}
	if svc.Inbox != nil {
		if err := svc.Inbox.Notify(ctx, app.StudentID, title, "Admission application status: "+string(app.Status)); err != nil {
			svc.logWarn("storing inbox notification", err)
		}
	}
	if svc.MailSvc != nil && app.Status.IsTerminal() {
		svc.MailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: app.StudentName, Address: app.Email}},
			Subject:      title,
			TemplateName: "application_decision",
			TemplateData: map[string]interface{}{
				"StudentName": app.StudentName,
				"Status":      string(app.Status),
			},
		})
	}
}

func (svc *Service) actorName(ctx context.Context, requester auth.Claims) string {
	if svc.Users != nil {
		if usr, err := svc.Users.GetByID(ctx, requester.UserID()); err == nil {
			return usr.Name
		}
	}
	return "admin " + requester.UserID()
}

func (svc *Service) logWarn(msg string, err error) {
	if svc.Logger != nil {
		svc.Logger.Warn(fmt.Sprintf("%s: %v", msg, err), err)
	}
}

// GetStatus returns the application of studentID to its owner or to an admin.
func (svc *Service) GetStatus(ctx context.Context, requester auth.Claims, studentID string) (Application, error) {
	if err := auth.Authorize(requester, auth.SelfOrAdmin(studentID)); err != nil {
		return Application{}, err
	}
	app, err := svc.Repo.GetApplicationByStudent(ctx, studentID)
	if err != nil {
		return Application{}, errors.Wrap(err, "finding application by student")
	}
	return app, nil
}

func (svc *Service) QueryAll(ctx context.Context, requester auth.Claims, orderings ...core.DBOrdering) ([]Application, error) {
	if err := auth.Authorize(requester, auth.AdminOnly()); err != nil {
		return nil, err
	}
	apps, err := svc.Repo.QueryAllApplications(ctx, orderings)
	if err != nil {
		return nil, errors.Wrap(err, "querying applications")
	}
	return apps, nil
}

func (svc *Service) Stats(ctx context.Context, requester auth.Claims) (Stats, error) {
	if err := auth.Authorize(requester, auth.AdminOnly()); err != nil {
		return Stats{}, err
	}
	stats, err := svc.Repo.CountApplicationsByStatus(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting applications")
	}
	return stats, nil
}
