package application

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/admissions/core"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in_review"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// predecessors lists the states a transition into the key state may start from.
var predecessors = map[Status][]Status{
	StatusInReview: {StatusPending},
	StatusApproved: {StatusPending, StatusInReview},
	StatusRejected: {StatusPending, StatusInReview},
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, from := range predecessors[to] {
		if from == s {
			return true
		}
	}
	return false
}

// DocumentStatus is the per-document projection of the application status.
func (s Status) DocumentStatus() string {
	switch s {
	case StatusApproved:
		return "verified"
	case StatusRejected:
		return "rejected"
	case StatusInReview:
		return "in_review"
	default:
		return "pending"
	}
}

type Application struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"studentId"`
	StudentName   string    `json:"studentName"`
	Email         string    `json:"email"`
	Status        Status    `json:"status"`
	Documents     []string  `json:"documents"`
	SubmittedDate time.Time `json:"submittedDate"` // UTC
	UpdatedAt     time.Time `json:"updatedAt"`     // UTC
}

type Document struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (app Application) DocumentList() []Document {
	docs := make([]Document, 0, len(app.Documents))
	for _, name := range app.Documents {
		docs = append(docs, Document{Name: name, Status: app.Status.DocumentStatus()})
	}
	return docs
}

// StatusView is what a student sees of their application.
type StatusView struct {
	Status      Status     `json:"status"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Documents   []Document `json:"documents"`
}

func (app Application) StatusView() StatusView {
	return StatusView{
		Status:      app.Status,
		LastUpdated: app.UpdatedAt,
		Documents:   app.DocumentList(),
	}
}

// NewApplication contains information needed to submit an Application.
type NewApplication struct {
	StudentID   string   `json:"studentId" validate:"omitempty,max=36"`
	StudentName string   `json:"studentName" validate:"required,notblank,max=150"`
	Email       string   `json:"email" validate:"required,email"`
	Documents   []string `json:"documents" validate:"omitempty,max=20,dive,required,max=200"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.StudentID = core.CleanString(na.StudentID)
	na.StudentName = core.CleanString(na.StudentName)
	na.Email = core.CleanString(na.Email, true /* lower */)
	for i, doc := range na.Documents {
		na.Documents[i] = core.CleanString(doc)
	}
	return validate.Struct(na)
}

// Stats counts applications per status.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	InReview int `json:"inReview"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

func (st *Stats) Add(status Status, n int) {
	st.Total += n
	switch status {
	case StatusPending:
		st.Pending += n
	case StatusInReview:
		st.InReview += n
	case StatusApproved:
		st.Approved += n
	case StatusRejected:
		st.Rejected += n
	}
}
