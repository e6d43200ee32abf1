package domain

import "time"

// CascadeKind identifies the workflow a cascade job runs.
type CascadeKind string

const CascadeDeleteUser CascadeKind = "DELETE_USER"

// CascadeStatus is the lifecycle state of a job or one of its steps.
type CascadeStatus string

const (
	CascadePending   CascadeStatus = "PENDING"
	CascadeRunning   CascadeStatus = "RUNNING"
	CascadeCompleted CascadeStatus = "COMPLETED"
	CascadeFailed    CascadeStatus = "FAILED"
)

// CascadeStep records the outcome of one step of a cascade job.
type CascadeStep struct {
	Name        string        `json:"name"`
	Status      CascadeStatus `json:"status"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"lastError,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// CascadeJob is a persisted multi-step cleanup. It is re-run until every
// step has completed.
type CascadeJob struct {
	ID        string        `json:"jobId"`
	Kind      CascadeKind   `json:"kind"`
	SubjectID string        `json:"subjectId"`
	Status    CascadeStatus `json:"status"`
	Steps     []CascadeStep `json:"steps"`
	Attempts  int           `json:"attempts"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Version   int           `json:"-"`
}

// Done reports whether the job needs no further runs.
func (j *CascadeJob) Done() bool {
	return j.Status == CascadeCompleted || j.Status == CascadeFailed
}

// Step returns the named step, or nil.
func (j *CascadeJob) Step(name string) *CascadeStep {
	for i := range j.Steps {
		if j.Steps[i].Name == name {
			return &j.Steps[i]
		}
	}
	return nil
}
