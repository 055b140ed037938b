package models

type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether a status can never change again. Once a task
// reaches a terminal status its snapshot stays frozen for the rest of the
// session.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type DeliverableType string

const (
	DeliverableCSV  DeliverableType = "csv"
	DeliverableDOCX DeliverableType = "docx"
	DeliverablePDF  DeliverableType = "pdf"
)

type Progress struct {
	CurrentStep int `json:"current_step"`
	TotalSteps  int `json:"total_steps"`
}

// Percent derives the progress bar value; 3 of 10 steps is 30.
func (p Progress) Percent() int {
	if p.TotalSteps <= 0 {
		return 0
	}
	return p.CurrentStep * 100 / p.TotalSteps
}

type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Deliverable struct {
	Type        DeliverableType `json:"type"`
	URL         string          `json:"url"`
	Description string          `json:"description,omitempty"`
}

type Usage struct {
	SearchCost  float64 `json:"search_cost"`
	AICost      float64 `json:"ai_cost"`
	ComputeCost float64 `json:"compute_cost"`
	TotalCost   float64 `json:"total_cost"`
}

type ResearchTask struct {
	ID           string        `json:"id"`
	Status       TaskStatus    `json:"status"`
	Progress     *Progress     `json:"progress,omitempty"`
	Output       string        `json:"output,omitempty"`
	Sources      []Source      `json:"sources,omitempty"`
	Deliverables []Deliverable `json:"deliverables,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// AuthSession is the signed-in state in hosted mode. Both fields are absent
// in self-hosted mode.
type AuthSession struct {
	User        *User  `json:"user,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

type ResearchRequest struct {
	SupplementName     string `json:"supplementName"`
	ResearchFocus      string `json:"researchFocus,omitempty"`
	CurrentSupplements string `json:"currentSupplements,omitempty"`
	HealthGoals        string `json:"healthGoals,omitempty"`
}

type CreateResponse struct {
	Success        bool       `json:"success"`
	DeepResearchID string     `json:"deepresearch_id"`
	Status         TaskStatus `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

const ErrorCodeAuthRequired = "AUTH_REQUIRED"
