// Package research is the client for the external deep-research task API:
// create, status and cancel, with bearer-token attachment and structured
// auth-error detection. All actual research work happens upstream; this is
// the only boundary where upstream JSON is trusted.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/unicodeveloper/supplement-research/internal/models"
)

// Client calls the deep-research API. The bearer callback supplies the
// credential per request: the user's session token in hosted mode, the
// operator's API key in self-hosted mode. An empty bearer sends no
// Authorization header.
type Client struct {
	baseURL    string
	bearer     func() string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL string, bearer func() string, timeout time.Duration, log *slog.Logger) *Client {
	if bearer == nil {
		bearer = func() string { return "" }
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bearer:     bearer,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type deliverableSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Columns     []string `json:"columns,omitempty"`
}

type createTaskRequest struct {
	Brief         string            `json:"brief"`
	Deliverables  []deliverableSpec `json:"deliverables"`
	OutputFormats []string          `json:"output_formats"`
}

type createTaskResponse struct {
	ID string `json:"id"`
}

type upstreamError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// evidenceColumns is the fixed layout of the CSV deliverable.
var evidenceColumns = []string{
	"study", "year", "study_type", "dosage", "duration", "outcome", "effect", "source_url",
}

// CreateTask submits the research brief with the fixed deliverables
// specification (one CSV, one one-page document, markdown+pdf output) and
// returns the opaque task id.
func (c *Client) CreateTask(ctx context.Context, req models.ResearchRequest) (string, error) {
	body := createTaskRequest{
		Brief: buildBrief(req),
		Deliverables: []deliverableSpec{
			{Type: "csv", Description: "Evidence table for " + req.SupplementName, Columns: evidenceColumns},
			{Type: "document", Description: "One-page summary of findings for " + req.SupplementName},
		},
		OutputFormats: []string{"markdown", "pdf"},
	}

	resp, err := c.post(ctx, "/v1/tasks", body)
	if err != nil {
		return "", &CreationError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if authErr := c.classify(resp); authErr != nil {
			return "", authErr
		}
		return "", &CreationError{Message: readErrorMessage(resp)}
	}

	var created createTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &CreationError{Message: "decoding response: " + err.Error()}
	}
	if created.ID == "" {
		return "", &CreationError{Message: "upstream returned no task id"}
	}
	return created.ID, nil
}

// GetStatus fetches the current task snapshot.
func (c *Client) GetStatus(ctx context.Context, taskID string) (*models.ResearchTask, error) {
	resp, err := c.get(ctx, "/v1/tasks/"+taskID)
	if err != nil {
		return nil, &StatusError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if authErr := c.classify(resp); authErr != nil {
			return nil, authErr
		}
		return nil, &StatusError{Message: readErrorMessage(resp)}
	}

	var task models.ResearchTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, &StatusError{Message: "decoding response: " + err.Error()}
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

// CancelTask notifies upstream that the task should stop. Best-effort:
// failures are logged, never surfaced — local cleanup proceeds regardless of
// server acknowledgment.
func (c *Client) CancelTask(ctx context.Context, taskID string) {
	resp, err := c.post(ctx, "/v1/tasks/"+taskID+"/cancel", nil)
	if err != nil {
		c.log.Warn("task cancel request failed", slog.String("taskID", taskID), slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.log.Warn("task cancel rejected upstream", slog.String("taskID", taskID), slog.Int("status", resp.StatusCode))
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// classify returns ErrAuthRequired when the response means the credential is
// missing, invalid or expired; nil otherwise. The body is only consumed for
// non-2xx responses, whose message the caller wants anyway.
func (c *Client) classify(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuthRequired
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	resp.Body = io.NopCloser(bytes.NewReader(data))

	var ue upstreamError
	if err := json.Unmarshal(data, &ue); err == nil {
		if looksLikeAuthError(ue.Error) || looksLikeAuthError(ue.Message) {
			return ErrAuthRequired
		}
	}
	return nil
}

func readErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Sprintf("upstream returned %d", resp.StatusCode)
	}

	var ue upstreamError
	if err := json.Unmarshal(data, &ue); err == nil {
		if ue.Message != "" {
			return ue.Message
		}
		if ue.Error != "" {
			return ue.Error
		}
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return fmt.Sprintf("upstream returned %d", resp.StatusCode)
	}
	return msg
}

// buildBrief turns the form input into the natural-language research brief.
func buildBrief(req models.ResearchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research the supplement %s.", req.SupplementName)
	if req.ResearchFocus != "" {
		fmt.Fprintf(&b, " Focus on: %s.", req.ResearchFocus)
	}
	if req.CurrentSupplements != "" {
		fmt.Fprintf(&b, " The user currently takes: %s; check for interactions.", req.CurrentSupplements)
	}
	if req.HealthGoals != "" {
		fmt.Fprintf(&b, " Health goals: %s.", req.HealthGoals)
	}
	b.WriteString(" Cite primary sources and summarize the strength of evidence.")
	return b.String()
}
