package dispatch

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/nlstep/nlstep/internal/executor"
	"github.com/nlstep/nlstep/pkg/schema"
)

var (
	// `POST /api/users with JSON data: {"name": "x"}`
	methodPathRe = regexp.MustCompile(`(?i)\b(GET|POST|PUT|DELETE|PATCH)\b\s+(https?://\S+|/\S+)`)
	jsonBodyRe   = regexp.MustCompile(`(?is)(?:json\s+)?(?:data|body|payload)\s*:?\s*(\{.*\})\s*$`)

	quotedRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// "I login with username 'alice' and password 'secret'"
	credentialRe = regexp.MustCompile(`(?i)(username|user|email)\s+["']([^"']+)["'].*?(password)\s+["']([^"']+)["']`)
)

// protectedPathParts are the endpoint segments that require authentication.
// The dispatcher injects the session token for these when the step did not
// supply one.
var protectedPathParts = []string{"/user/", "/profile/", "/admin/"}

// parseAPIRequest turns an API step into an executable request. It
// understands explicit method-and-path phrasing, inline JSON payloads, and
// credential phrasing for login steps. Relative paths resolve against the
// configured base URL; a relative path with no base URL is an unusable
// endpoint.
func (d *Dispatcher) parseAPIRequest(stepText string) (executor.APIRequest, error) {
	lower := strings.ToLower(stepText)

	req := executor.APIRequest{}

	if m := methodPathRe.FindStringSubmatch(stepText); m != nil {
		req.Method = strings.ToUpper(m[1])
		endpoint, err := d.resolveEndpoint(m[2])
		if err != nil {
			return executor.APIRequest{}, err
		}
		req.Endpoint = endpoint
	}

	if m := jsonBodyRe.FindStringSubmatch(stepText); m != nil {
		var body any
		if err := json.Unmarshal([]byte(m[1]), &body); err != nil {
			return executor.APIRequest{}, schema.NewErrorf(schema.ErrCodeValidation,
				"step payload is not valid JSON: %v", err).WithCause(err).WithStep(stepText)
		}
		req.Body = body
	}

	if isLoginStep(lower) {
		req.Login = true
		if req.Method == "" {
			req.Method = "POST"
		}
		if req.Endpoint == "" {
			endpoint, err := d.resolveEndpoint(d.config.LoginPath)
			if err != nil {
				return executor.APIRequest{}, err
			}
			req.Endpoint = endpoint
		}
		if req.Body == nil {
			if creds := parseCredentials(stepText); creds != nil {
				req.Body = creds
			}
		}
	}

	if req.Endpoint == "" {
		return executor.APIRequest{}, schema.NewErrorf(schema.ErrCodeInvalidEndpoint,
			"cannot determine an endpoint from step %q", stepText).WithStep(stepText)
	}
	if req.Method == "" {
		req.Method = "GET"
	}

	// Protected paths get the captured token unless the step is a login or
	// carries its own credentials.
	if !req.Login && d.session.BearerToken() != "" && needsAuth(req.Endpoint) {
		req.BearerToken = d.session.BearerToken()
	}

	return req, nil
}

// resolveEndpoint makes a target absolute: full URLs pass through, relative
// paths need a configured base URL.
func (d *Dispatcher) resolveEndpoint(target string) (string, error) {
	target = strings.TrimRight(target, `.,;"'`)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, nil
	}
	if d.config.BaseURL == "" {
		return "", schema.NewErrorf(schema.ErrCodeInvalidEndpoint,
			"relative path %q needs a configured base URL", target)
	}
	base, err := url.Parse(d.config.BaseURL)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeInvalidEndpoint,
			"base URL %q is not parseable: %v", d.config.BaseURL, err).WithCause(err)
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeInvalidEndpoint,
			"path %q is not parseable: %v", target, err).WithCause(err)
	}
	return base.ResolveReference(ref).String(), nil
}

func isLoginStep(lower string) bool {
	for _, w := range []string{"login", "log in", "sign in", "authenticate"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// parseCredentials extracts a login payload from the step text: labeled
// credentials first, then an email plus the remaining quoted value.
func parseCredentials(stepText string) map[string]any {
	if m := credentialRe.FindStringSubmatch(stepText); m != nil {
		field := "username"
		if strings.EqualFold(m[1], "email") {
			field = "email"
		}
		return map[string]any{field: m[2], "password": m[4]}
	}

	email := emailRe.FindString(stepText)
	var password string
	for _, m := range quotedRe.FindAllStringSubmatch(stepText, -1) {
		q := m[1]
		if q == "" {
			q = m[2]
		}
		if q == email {
			continue
		}
		password = q
		break
	}
	if email != "" && password != "" {
		return map[string]any{"email": email, "password": password}
	}
	return nil
}

func needsAuth(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	// Trailing slash so "/user/5" and "/profile/" both match.
	path := u.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	for _, part := range protectedPathParts {
		if strings.Contains(path, part) {
			return true
		}
	}
	return false
}
