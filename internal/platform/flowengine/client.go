package flowengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yungbote/genflow-backend/internal/observability"
	"github.com/yungbote/genflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

// Client talks to the external automation engine that runs generation flows.
type Client interface {
	Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error)
	GetExecution(ctx context.Context, executionID string) (*Execution, error)
	StopExecution(ctx context.Context, executionID string) error
}

type TriggerRequest struct {
	FlowID       string
	WebhookPath  string
	GenerationID uuid.UUID
	CallbackURL  string
	Input        json.RawMessage
}

type TriggerResult struct {
	ExecutionID string
}

// Execution is the engine's view of a run, in the engine's own vocabulary.
type Execution struct {
	ID           string
	Finished     bool
	Status       string
	StartedAt    *time.Time
	StoppedAt    *time.Time
	ErrorMessage string
	Progress     *int
	Output       json.RawMessage
}

type client struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	limiter *rate.Limiter
	http    *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	c := &client{
		log:     log.With("service", "FlowEngineClient"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	log.Info(
		"Flow engine client configured",
		"base_url", c.baseURL,
		"timeout", cfg.Timeout.String(),
		"rps", cfg.RequestsPerSecond,
	)
	return c, nil
}

type triggerBody struct {
	GenerationID string          `json:"generationId"`
	FlowID       string          `json:"flowId"`
	CallbackURL  string          `json:"callbackUrl,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
}

type triggerResponse struct {
	ExecutionID string `json:"executionId"`
	ID          any    `json:"id"`
}

func (c *client) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	const op = "trigger"
	path := strings.TrimSpace(req.WebhookPath)
	if path == "" {
		path = "/webhook/" + url.PathEscape(req.FlowID)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if req.GenerationID == uuid.Nil {
		return nil, opErr(op, OperationErrorValidation, "generation id is required", nil)
	}
	body := triggerBody{
		GenerationID: req.GenerationID.String(),
		FlowID:       req.FlowID,
		CallbackURL:  req.CallbackURL,
	}
	if len(req.Input) > 0 {
		body.Input = req.Input
	}
	var out triggerResponse
	if err := c.doJSON(ctx, op, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	execID := strings.TrimSpace(out.ExecutionID)
	if execID == "" && out.ID != nil {
		execID = strings.TrimSpace(fmt.Sprint(out.ID))
	}
	if execID == "" {
		return nil, opErr(op, OperationErrorDecodeFailed, "engine response missing execution id", nil)
	}
	return &TriggerResult{ExecutionID: execID}, nil
}

type executionResponse struct {
	ID        any        `json:"id"`
	Finished  bool       `json:"finished"`
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"startedAt"`
	StoppedAt *time.Time `json:"stoppedAt"`
	Progress  *int       `json:"progress"`
	Data      struct {
		ResultData struct {
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
			Output json.RawMessage `json:"output"`
		} `json:"resultData"`
	} `json:"data"`
}

func (c *client) GetExecution(ctx context.Context, executionID string) (*Execution, error) {
	const op = "get_execution"
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return nil, opErr(op, OperationErrorValidation, "execution id is required", nil)
	}
	var out executionResponse
	path := "/api/v1/executions/" + url.PathEscape(executionID) + "?includeData=true"
	if err := c.doJSON(ctx, op, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	ex := &Execution{
		ID:        executionID,
		Finished:  out.Finished,
		Status:    strings.ToLower(strings.TrimSpace(out.Status)),
		StartedAt: out.StartedAt,
		StoppedAt: out.StoppedAt,
		Progress:  out.Progress,
		Output:    out.Data.ResultData.Output,
	}
	if e := out.Data.ResultData.Error; e != nil {
		ex.ErrorMessage = strings.TrimSpace(e.Message)
		if ex.ErrorMessage == "" {
			ex.ErrorMessage = "execution reported an error"
		}
	}
	return ex, nil
}

func (c *client) StopExecution(ctx context.Context, executionID string) error {
	const op = "stop_execution"
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return opErr(op, OperationErrorValidation, "execution id is required", nil)
	}
	path := "/api/v1/executions/" + url.PathEscape(executionID) + "/stop"
	return c.doJSON(ctx, op, http.MethodPost, path, nil, nil)
}

func (c *client) doJSON(ctx context.Context, op, method, path string, in any, out any) (err error) {
	ctx = ctxutil.Default(ctx)
	began := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(OperationErrorServer)
			var oe *OperationError
			if errors.As(err, &oe) {
				outcome = string(oe.Code)
			}
		}
		observability.Current().ObserveEngineCall(op, outcome, time.Since(began))
	}()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return classifyHTTPCallError(op, "rate limiter wait failed", err)
		}
	}

	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}
	if td := ctxutil.GetTraceData(ctx); td != nil && td.RequestID != "" {
		req.Header.Set("X-Request-Id", td.RequestID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("flow engine request failed", "op", op, "error", err)
		return classifyHTTPCallError(op, "flow engine request failed", err)
	}
	defer resp.Body.Close()

	c.log.Debug("flow engine call", "op", op, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes+1))
		code := OperationErrorRejected
		switch {
		case resp.StatusCode == http.StatusNotFound:
			code = OperationErrorNotFound
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			code = OperationErrorServer
		}
		return &OperationError{
			Code:       code,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("flow engine http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	// Execution payloads carry the full output; the body is never truncated.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return opErr(op, OperationErrorDecodeFailed, "decode flow engine response failed", err)
	}
	return nil
}

func truncateBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes] + "..."
	}
	return s
}
