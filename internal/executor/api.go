package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nlstep/nlstep/pkg/schema"
)

// APIConfig configures the API executor.
type APIConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultAPITimeout      = 30 * time.Second
)

// APIRequest is one fully resolved HTTP call. Endpoint must be absolute;
// relative paths are resolved by the dispatcher before reaching here.
type APIRequest struct {
	Method      string
	Endpoint    string
	Body        any
	BearerToken string
	// Login marks an authentication request. Login requests never carry an
	// Authorization header, even when a token was captured earlier.
	Login bool
}

// APIExecutor performs HTTP calls and reports each one as an
// ExecutionRecord. A non-2xx status is data in the record, not an error;
// only an unusable endpoint is reported as an error return. Transport
// failures are folded into the record's Error field.
type APIExecutor struct {
	config APIConfig
	client *http.Client
}

// NewAPIExecutor creates an API executor with the given config.
func NewAPIExecutor(cfg APIConfig) *APIExecutor {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultAPITimeout
	}
	return &APIExecutor{
		config: cfg,
		client: &http.Client{},
	}
}

// Validate checks that the endpoint is an absolute http(s) URL.
func (e *APIExecutor) Validate(req APIRequest) error {
	u, err := url.ParseRequestURI(req.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return schema.NewErrorf(schema.ErrCodeInvalidEndpoint,
			"endpoint %q is not an absolute http(s) URL", req.Endpoint)
	}
	return nil
}

// Execute performs the request and returns its record. The record is always
// complete enough to report: tool, endpoint, request body, and the curl
// reconstruction are filled in before the call is attempted, so even a
// transport failure leaves a usable record behind.
func (e *APIExecutor) Execute(ctx context.Context, req APIRequest) (*schema.ExecutionRecord, error) {
	if err := e.Validate(req); err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	tool := strings.ToLower(method)
	if req.Login {
		tool = "login"
	}

	headers := requestHeaders(req)
	rec := &schema.ExecutionRecord{
		Tool:        tool,
		Endpoint:    req.Endpoint,
		RequestBody: req.Body,
		Curl:        buildCurl(method, req.Endpoint, headers, req.Body),
	}

	var bodyReader io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"request body is not serializable: %v", err).WithCause(err)
		}
		bodyReader = strings.NewReader(string(b))
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.DefaultTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, method, req.Endpoint, bodyReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidEndpoint,
			"cannot build request for %q: %v", req.Endpoint, err).WithCause(err)
	}
	for _, h := range headers {
		httpReq.Header.Set(h.Name, h.Value)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		// Connection refused, DNS failure, timeout. The step still ran;
		// the failure is data for the assertion and reporting layers.
		rec.Error = transportError(err).Error()
		return rec, nil
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, e.config.MaxResponseBody))
	if err != nil {
		rec.Error = transportError(err).Error()
		return rec, nil
	}

	status := resp.StatusCode
	rec.StatusCode = &status
	rec.ResponseBody = string(bodyBytes)
	if len(bodyBytes) > 0 {
		var parsed any
		if err := json.Unmarshal(bodyBytes, &parsed); err == nil {
			rec.ResponseJSON = parsed
		}
	}

	return rec, nil
}

func transportError(err error) *schema.EngineError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return schema.NewErrorf(schema.ErrCodeTimeout, "request timed out: %v", err).WithCause(err)
	}
	return schema.NewErrorf(schema.ErrCodeTransport, "request failed: %v", err).WithCause(err)
}

type header struct {
	Name  string
	Value string
}

// requestHeaders builds the ordered header list for a request. Content-Type
// is present whenever a body is, and Authorization only for non-login
// requests that have a token.
func requestHeaders(req APIRequest) []header {
	var hs []header
	if req.Body != nil {
		hs = append(hs, header{"Content-Type", "application/json"})
	}
	if !req.Login && req.BearerToken != "" {
		hs = append(hs, header{"Authorization", "Bearer " + req.BearerToken})
	}
	return hs
}

// buildCurl reconstructs the equivalent curl invocation for diagnostics and
// reports. Values are single-quoted the way a shell user would write them.
func buildCurl(method, endpoint string, headers []header, body any) string {
	var sb strings.Builder
	sb.WriteString("curl -X ")
	sb.WriteString(method)
	for _, h := range headers {
		sb.WriteString(" -H ")
		sb.WriteString(shellQuote(h.Name + ": " + h.Value))
	}
	sb.WriteString(" ")
	sb.WriteString(shellQuote(endpoint))
	if body != nil {
		if b, err := json.Marshal(body); err == nil {
			sb.WriteString(" -d ")
			sb.WriteString(shellQuote(string(b)))
		}
	}
	return sb.String()
}

func shellQuote(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
