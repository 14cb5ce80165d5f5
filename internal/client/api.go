package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
)

// serverClient is the thin HTTP client against the C7 surface, kept
// separate from the pipeline's orchestration logic so it can be stubbed
// out in tests (same ports-style separation the teacher applies to its
// openaiapi clients).
type serverClient struct {
	baseURL    string
	httpClient *http.Client
}

func newServerClient(baseURL string) *serverClient {
	return &serverClient{baseURL: baseURL, httpClient: http.DefaultClient}
}

type poolStatus struct {
	IsFull          bool `json:"is_full"`
	CurrentSize     int  `json:"current_size"`
	MaxSize         int  `json:"max_size"`
	ProcessingCount int  `json:"processing_count"`
}

func (c *serverClient) poolStatus(ctx context.Context) (*poolStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pool/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: pool status: unexpected status %d", resp.StatusCode)
	}
	var ps poolStatus
	if err := json.NewDecoder(resp.Body).Decode(&ps); err != nil {
		return nil, fmt.Errorf("client: decode pool status: %w", err)
	}
	return &ps, nil
}

// submit posts bundlePath as taskID/model to /tasks/submit.
func (c *serverClient) submit(ctx context.Context, taskID, model, password, bundlePath string) error {
	data, err := os.ReadFile(bundlePath)
	if err != nil {
		return fmt.Errorf("client: read bundle: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("task_id", taskID); err != nil {
		return err
	}
	if err := mw.WriteField("model", model); err != nil {
		return err
	}
	if err := mw.WriteField("password", password); err != nil {
		return err
	}
	part, err := mw.CreateFormFile(taskFileField, taskID+".bundle")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks/submit", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrPoolFull
	default:
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrServerRejected, resp.StatusCode, string(detail))
	}
}

type taskStatus struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *serverClient) status(ctx context.Context, taskID string) (*taskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: status %s: unexpected HTTP %d", taskID, resp.StatusCode)
	}
	var ts taskStatus
	if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
		return nil, fmt.Errorf("client: decode status: %w", err)
	}
	return &ts, nil
}

func (c *serverClient) downloadResult(ctx context.Context, taskID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID+"/result/download", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: download %s: unexpected HTTP %d", taskID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// taskFileField must match the server's fixed submit field name
// (internal/httpapi.taskFileField), duplicated here since the client and
// server share no common package across the wire boundary.
const taskFileField = "task_file"
