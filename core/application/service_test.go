package application_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/activity"
	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/auth"
	"github.com/trezcool/admissions/core/notification"
	"github.com/trezcool/admissions/core/profile"
	"github.com/trezcool/admissions/core/user"
	emailsvc "github.com/trezcool/admissions/services/email"
	sqlxrepos "github.com/trezcool/admissions/storage/database/sqlx"
	"github.com/trezcool/admissions/tests"
)

type fixture struct {
	svc      *application.Service
	usrRepo  user.Repository
	appRepo  application.Repository
	hub      *notification.Hub
	log      *activity.Log
	inbox    *profile.Service
	mailSvc  *emailsvc.ConsoleServiceMock
	recorded []string
	mu       sync.Mutex
}

func (f *fixture) RecordTransition(status string) {
	f.mu.Lock()
	f.recorded = append(f.recorded, status)
	f.mu.Unlock()
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := testutil.TestConfig()
	core.ParseEmailTemplates(testutil.NewLogger())
	db := testutil.OpenDB(t)

	f := &fixture{
		usrRepo: sqlxrepos.NewUserRepository(db),
		appRepo: sqlxrepos.NewApplicationRepository(db),
		hub:     notification.NewHub(),
		log:     activity.NewLog(activity.DefaultCapacity),
		mailSvc: emailsvc.NewConsoleServiceMock(conf),
	}
	f.inbox = profile.NewService(sqlxrepos.NewProfileRepository(db), f.appRepo)
	f.svc = application.NewService(application.Deps{
		Repo:     f.appRepo,
		Users:    user.NewService(f.usrRepo, auth.NewAuthority(conf), f.mailSvc, conf),
		Notifier: f.hub,
		Activity: f.log,
		Inbox:    f.inbox,
		MailSvc:  f.mailSvc,
		Metrics:  f,
		Logger:   testutil.NewLogger(),
	})
	return f
}

func newApp(name string) application.NewApplication {
	return application.NewApplication{
		StudentName: name,
		Email:       "student@x.com",
		Documents:   []string{"id.pdf", "transcript.pdf"},
	}
}

func TestSubmit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@x.com", "", user.RoleAdmin)
	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice@x.com", "", user.RoleStudent)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob@x.com", "", user.RoleStudent)
	carl := testutil.CreateUser(t, f.usrRepo, "Carl", "carl@x.com", "", user.RoleStudent)

	t.Run("student submits for self", func(t *testing.T) {
		app, err := f.svc.Submit(ctx, testutil.ClaimsFor(alice), newApp("Alice"))
		require.NoError(t, err)
		assert.Equal(t, alice.ID, app.StudentID)
		assert.Equal(t, application.StatusPending, app.Status)
		assert.Equal(t, app.SubmittedDate, app.UpdatedAt)
	})

	t.Run("second submission conflicts", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, testutil.ClaimsFor(alice), newApp("Alice"))
		assert.Equal(t, application.ErrAlreadyExists, errors.Cause(err))
	})

	t.Run("student cannot submit for someone else", func(t *testing.T) {
		na := newApp("Bob")
		na.StudentID = bob.ID
		_, err := f.svc.Submit(ctx, testutil.ClaimsFor(alice), na)
		assert.Equal(t, auth.ErrForbidden, err)
	})

	t.Run("admin must name an existing student", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, testutil.ClaimsFor(admin), newApp("Bob"))
		assert.Equal(t, core.KindValidation, core.KindOf(err))

		na := newApp("Bob")
		na.StudentID = "lol"
		_, err = f.svc.Submit(ctx, testutil.ClaimsFor(admin), na)
		assert.Equal(t, core.KindValidation, core.KindOf(err))

		na.StudentID = admin.ID
		_, err = f.svc.Submit(ctx, testutil.ClaimsFor(admin), na)
		assert.Equal(t, core.KindValidation, core.KindOf(err))

		na.StudentID = bob.ID
		app, err := f.svc.Submit(ctx, testutil.ClaimsFor(admin), na)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, app.StudentID)
	})

	t.Run("concurrent submissions: exactly one succeeds", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.Submit(ctx, testutil.ClaimsFor(carl), newApp("Carl"))
			}(i)
		}
		wg.Wait()
		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.Equal(t, application.ErrAlreadyExists, errors.Cause(err))
			}
		}
		assert.Equal(t, 1, succeeded)
	})
}

func TestTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, f.usrRepo, "Grace Admin", "admin@x.com", "", user.RoleAdmin)
	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice@x.com", "", user.RoleStudent)
	adminClaims := testutil.ClaimsFor(admin)

	app, err := f.svc.Submit(ctx, testutil.ClaimsFor(alice), newApp("Alice"))
	require.NoError(t, err)

	sess := notification.NewChanSession(16)
	leave := f.hub.Join(alice.ID, sess)
	defer leave()

	t.Run("students cannot decide", func(t *testing.T) {
		_, err := f.svc.Approve(ctx, testutil.ClaimsFor(alice), app.ID)
		assert.Equal(t, auth.ErrForbidden, err)
		_, err = f.svc.MarkInReview(ctx, testutil.ClaimsFor(alice), app.ID)
		assert.Equal(t, auth.ErrForbidden, err)
	})

	t.Run("unknown application", func(t *testing.T) {
		_, err := f.svc.Reject(ctx, adminClaims, "lol")
		assert.Equal(t, application.ErrNotFound, errors.Cause(err))
	})

	t.Run("in review", func(t *testing.T) {
		got, err := f.svc.MarkInReview(ctx, adminClaims, app.ID)
		require.NoError(t, err)
		assert.Equal(t, application.StatusInReview, got.Status)
		assert.Len(t, sess.Events(), 2)
		drain(sess)
	})

	t.Run("approve", func(t *testing.T) {
		got, err := f.svc.Approve(ctx, adminClaims, app.ID)
		require.NoError(t, err)
		assert.Equal(t, application.StatusApproved, got.Status)
		assert.True(t, got.UpdatedAt.After(app.UpdatedAt) || got.UpdatedAt.Equal(app.UpdatedAt))

		evts := drain(sess)
		require.Len(t, evts, 2)
		assert.Equal(t, notification.EventApplicationStatusUpdated, evts[0].Name)
		view, ok := evts[0].Data.(application.StatusView)
		require.True(t, ok)
		assert.Equal(t, application.StatusApproved, view.Status)
		require.Len(t, view.Documents, 2)
		assert.Equal(t, "verified", view.Documents[0].Status)
		assert.Equal(t, notification.EventNotification, evts[1].Name)

		entries := f.log.List()
		require.Len(t, entries, 2)
		assert.Equal(t, activity.TypeApplicationApproved, entries[0].Type)
		assert.Contains(t, entries[0].Message, "Grace Admin")
		assert.Contains(t, entries[0].Message, "Alice")

		ns, err := f.inbox.Notifications(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, ns, 2)

		sent := f.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0].TextContent, "approved")
	})

	t.Run("approving again is a silent no-op", func(t *testing.T) {
		got, err := f.svc.Approve(ctx, adminClaims, app.ID)
		require.NoError(t, err)
		assert.Equal(t, application.StatusApproved, got.Status)
		assert.Empty(t, drain(sess))
		assert.Equal(t, 2, f.log.Len())
	})

	t.Run("terminal states are final", func(t *testing.T) {
		got, err := f.svc.Reject(ctx, adminClaims, app.ID)
		assert.Equal(t, application.ErrAlreadyDecided, err)
		assert.Equal(t, application.StatusApproved, got.Status)
		_, err = f.svc.MarkInReview(ctx, adminClaims, app.ID)
		assert.Equal(t, application.ErrAlreadyDecided, err)
		assert.Empty(t, drain(sess))
	})

	f.mu.Lock()
	assert.Equal(t, []string{"in_review", "approved"}, f.recorded)
	f.mu.Unlock()
}

func TestConcurrentDecisions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@x.com", "", user.RoleAdmin)
	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice@x.com", "", user.RoleStudent)
	app := testutil.CreateApplication(t, f.appRepo, alice, application.StatusPending)

	sess := notification.NewChanSession(64)
	defer f.hub.Join(alice.ID, sess)()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = f.svc.Approve(ctx, testutil.ClaimsFor(admin), app.ID)
			} else {
				_, _ = f.svc.Reject(ctx, testutil.ClaimsFor(admin), app.ID)
			}
		}(i)
	}
	wg.Wait()

	// one status update and one ad-hoc notification, whoever won
	assert.Len(t, drain(sess), 2)
	assert.Equal(t, 1, f.log.Len())
	assert.Len(t, f.mailSvc.SentMessages(), 1)
}

func TestGetStatusAndQueries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@x.com", "", user.RoleAdmin)
	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice@x.com", "", user.RoleStudent)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob@x.com", "", user.RoleStudent)
	testutil.CreateApplication(t, f.appRepo, alice, application.StatusPending, "id.pdf")
	testutil.CreateApplication(t, f.appRepo, bob, application.StatusRejected)

	tests := []struct {
		name      string
		requester user.User
		studentID string
		wantErr   error
	}{
		{name: "self", requester: alice, studentID: alice.ID},
		{name: "admin", requester: admin, studentID: bob.ID},
		{name: "other student", requester: bob, studentID: alice.ID, wantErr: auth.ErrForbidden},
		{name: "no application", requester: admin, studentID: admin.ID, wantErr: application.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, err := f.svc.GetStatus(ctx, testutil.ClaimsFor(tt.requester), tt.studentID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.studentID, app.StudentID)
		})
	}

	_, err := f.svc.QueryAll(ctx, testutil.ClaimsFor(alice))
	assert.Equal(t, auth.ErrForbidden, err)
	apps, err := f.svc.QueryAll(ctx, testutil.ClaimsFor(admin), core.DBOrdering{Field: "studentName", Ascending: true})
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "Alice", apps[0].StudentName)

	_, err = f.svc.Stats(ctx, testutil.ClaimsFor(bob))
	assert.Equal(t, auth.ErrForbidden, err)
	stats, err := f.svc.Stats(ctx, testutil.ClaimsFor(admin))
	require.NoError(t, err)
	assert.Equal(t, application.Stats{Total: 2, Pending: 1, Rejected: 1}, stats)
}

func drain(s *notification.ChanSession) []notification.Event {
	var evts []notification.Event
	for {
		select {
		case evt := <-s.Events():
			evts = append(evts, evt)
		default:
			return evts
		}
	}
}
