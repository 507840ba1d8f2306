package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"diag-agent/app/domains"
)

// Timeouts are the per-call deadlines of the coordinator client
type Timeouts struct {
	Register  time.Duration
	Heartbeat time.Duration
	Poll      time.Duration
	Submit    time.Duration
	Upload    time.Duration
	Health    time.Duration
}

// DefaultTimeouts returns the coordinator's documented call budgets
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Register:  30 * time.Second,
		Heartbeat: 10 * time.Second,
		Poll:      15 * time.Second,
		Submit:    30 * time.Second,
		Upload:    5 * time.Minute,
		Health:    5 * time.Second,
	}
}

// WithControl overrides every control-plane deadline with d when d > 0
func (t Timeouts) WithControl(d time.Duration) Timeouts {
	if d <= 0 {
		return t
	}
	t.Register, t.Heartbeat, t.Poll, t.Submit, t.Health = d, d, d, d, d
	return t
}

// WithUpload overrides the upload deadline when d > 0
func (t Timeouts) WithUpload(d time.Duration) Timeouts {
	if d > 0 {
		t.Upload = d
	}
	return t
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CoordinatorClient talks to the coordinator's container API
type CoordinatorClient struct {
	http     *HTTPClient
	timeouts Timeouts
}

// NewCoordinatorClient creates a coordinator client
func NewCoordinatorClient(httpClient *HTTPClient, timeouts Timeouts) *CoordinatorClient {
	return &CoordinatorClient{http: httpClient, timeouts: timeouts}
}

// Register announces the agent identity. It returns false when the
// coordinator rejects the registration.
func (c *CoordinatorClient) Register(ctx context.Context, identity domains.Identity) (bool, error) {
	var out apiResponse
	_, err := c.http.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    "/api/containers/register",
		Body:    identity,
		Result:  &out,
		Timeout: c.timeouts.Register,
	})
	if err != nil {
		return false, err
	}
	return out.Success, nil
}

// Heartbeat reports liveness
func (c *CoordinatorClient) Heartbeat(ctx context.Context, agentID string) error {
	_, err := c.http.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    containerPath(agentID, "heartbeat"),
		Body:    map[string]interface{}{},
		Timeout: c.timeouts.Heartbeat,
	})
	return err
}

// PollCommand fetches the next pending command. It returns (nil, nil) when
// the queue is empty.
func (c *CoordinatorClient) PollCommand(ctx context.Context, agentID string) (*domains.Command, error) {
	resp, err := c.http.Do(ctx, Request{
		Method:   http.MethodGet,
		Path:     containerPath(agentID, "commands/poll"),
		Timeout:  c.timeouts.Poll,
		Expected: []int{http.StatusOK, http.StatusNoContent},
	})
	if err != nil {
		return nil, err
	}
	body := bytes.TrimSpace(resp.Body())
	if resp.StatusCode() == http.StatusNoContent || len(body) == 0 {
		return nil, nil
	}

	var cmd domains.Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return nil, fmt.Errorf("poll: failed to decode command: %w", err)
	}
	if cmd.Type == "" {
		return nil, fmt.Errorf("poll: command %d has no type", cmd.ID)
	}
	return &cmd, nil
}

// SubmitResult reports a command outcome. It is called at most once per command.
func (c *CoordinatorClient) SubmitResult(ctx context.Context, result *domains.CommandResult) error {
	_, err := c.http.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    containerPath(result.ContainerID, "commands/result"),
		Body:    result,
		Timeout: c.timeouts.Submit,
	})
	return err
}

// UploadFile sends a local file as multipart form data and returns the store's receipt
func (c *CoordinatorClient) UploadFile(ctx context.Context, agentID, path, fileName, fileType string) (domains.UploadReceipt, error) {
	f, err := os.Open(path)
	if err != nil {
		return domains.UploadReceipt{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	var receipt domains.UploadReceipt
	_, err = c.http.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    containerPath(agentID, "files/upload"),
		Result:  &receipt,
		Timeout: c.timeouts.Upload,
		Prepare: func(r *resty.Request) {
			r.SetFileReader("file", fileName, f).
				SetFormData(map[string]string{"fileType": fileType})
		},
	})
	if err != nil {
		return domains.UploadReceipt{}, err
	}
	if receipt.FileID == "" {
		return domains.UploadReceipt{}, fmt.Errorf("upload %s: response carried no fileId", fileName)
	}
	if receipt.FileName == "" {
		receipt.FileName = fileName
	}
	return receipt, nil
}

// Health probes the coordinator's health endpoint
func (c *CoordinatorClient) Health(ctx context.Context) error {
	_, err := c.http.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    "/api/health",
		Timeout: c.timeouts.Health,
	})
	return err
}

func containerPath(agentID, suffix string) string {
	return "/api/containers/" + url.PathEscape(agentID) + "/" + suffix
}
