package executor

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nlstep/nlstep/pkg/schema"
)

// MCPBackendConfig configures the stdio connection to a Playwright MCP
// server (e.g. `npx @playwright/mcp@latest`).
type MCPBackendConfig struct {
	Command string
	Args    []string
	Env     []string
}

// MCPBackend drives a browser through a Playwright MCP server spawned as a
// child process. The connection is established lazily on first use, so
// API-only scenarios never pay for a browser launch.
type MCPBackend struct {
	config MCPBackendConfig

	mu     sync.Mutex
	client *client.Client
}

// NewMCPBackend creates an MCP browser backend. The server process is not
// started until the first instruction runs.
func NewMCPBackend(cfg MCPBackendConfig) *MCPBackend {
	return &MCPBackend{config: cfg}
}

func (b *MCPBackend) connect(ctx context.Context) (*client.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return b.client, nil
	}
	if b.config.Command == "" {
		return nil, schema.NewError(schema.ErrCodeBackendUnavailable,
			"browser backend command not configured")
	}

	c, err := client.NewStdioMCPClient(b.config.Command, b.config.Env, b.config.Args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"cannot start browser backend %q: %v", b.config.Command, err).WithCause(err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "nlstep",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"browser backend handshake failed: %v", err).WithCause(err)
	}

	b.client = c
	return c, nil
}

// Run maps one natural-language instruction to a browser tool call.
func (b *MCPBackend) Run(ctx context.Context, instruction string) (*BackendResult, error) {
	c, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	name, args := mapInstruction(instruction)

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = name
	callReq.Params.Arguments = args

	res, err := c.CallTool(ctx, callReq)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"browser backend call failed: %v", err).WithCause(err)
	}

	msg := ""
	if len(res.Content) > 0 {
		msg = mcp.GetTextFromContent(res.Content[0])
	}
	return &BackendResult{
		Success: !res.IsError,
		Message: msg,
	}, nil
}

// Close shuts down the server process, if one was started.
func (b *MCPBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

var _ Backend = (*MCPBackend)(nil)

var (
	quotedRe  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	urlRe     = regexp.MustCompile(`https?://\S+`)
	secondsRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:seconds?|secs?|s\b)`)
)

// mapInstruction picks the browser tool and its arguments for one
// instruction. Unrecognized instructions fall back to a page snapshot so
// the scenario can still observe where it ended up.
func mapInstruction(instruction string) (string, map[string]any) {
	lower := strings.ToLower(instruction)

	switch {
	case strings.Contains(lower, "go back") || strings.Contains(lower, "navigate back"):
		return "browser_navigate_back", map[string]any{}

	case strings.Contains(lower, "navigate") || strings.Contains(lower, "go to") ||
		strings.HasPrefix(lower, "open ") || strings.Contains(lower, "visit"):
		url := extractURL(instruction)
		return "browser_navigate", map[string]any{"url": url}

	case strings.Contains(lower, "click") || strings.Contains(lower, "press") ||
		strings.Contains(lower, "tap"):
		return "browser_click", map[string]any{"element": extractTarget(instruction)}

	case strings.Contains(lower, "type") || strings.Contains(lower, "enter") ||
		strings.Contains(lower, "fill"):
		text, element := extractTyping(instruction)
		return "browser_type", map[string]any{"element": element, "text": text}

	case strings.Contains(lower, "wait"):
		args := map[string]any{}
		if m := secondsRe.FindStringSubmatch(lower); m != nil {
			if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
				args["time"] = secs
			}
		}
		if len(args) == 0 {
			if q := firstQuoted(instruction); q != "" {
				args["text"] = q
			}
		}
		return "browser_wait_for", args

	case strings.Contains(lower, "screenshot"):
		return "browser_take_screenshot", map[string]any{}

	case strings.Contains(lower, "close"):
		return "browser_close", map[string]any{}

	default:
		return "browser_snapshot", map[string]any{}
	}
}

func firstQuoted(s string) string {
	m := quotedRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func extractURL(instruction string) string {
	if u := urlRe.FindString(instruction); u != "" {
		return strings.TrimRight(u, `."'`)
	}
	return firstQuoted(instruction)
}

// extractTarget pulls the element description out of a click-style
// instruction: the quoted phrase if there is one, otherwise everything
// after the verb.
func extractTarget(instruction string) string {
	if q := firstQuoted(instruction); q != "" {
		return q
	}
	lower := strings.ToLower(instruction)
	for _, verb := range []string{"click on ", "click ", "press ", "tap on ", "tap "} {
		if idx := strings.Index(lower, verb); idx >= 0 {
			target := strings.TrimSpace(instruction[idx+len(verb):])
			return strings.TrimPrefix(target, "the ")
		}
	}
	return instruction
}

// extractTyping splits a typing instruction into the text to type and the
// field to type it into, e.g. `enter "alice" in the username field`.
func extractTyping(instruction string) (text, element string) {
	text = firstQuoted(instruction)
	lower := strings.ToLower(instruction)
	for _, marker := range []string{" into ", " in ", " to "} {
		if idx := strings.LastIndex(lower, marker); idx >= 0 {
			element = strings.TrimSpace(instruction[idx+len(marker):])
			element = strings.TrimPrefix(element, "the ")
			element = strings.TrimSuffix(element, " field")
			break
		}
	}
	if element == "" {
		element = instruction
	}
	return text, element
}
