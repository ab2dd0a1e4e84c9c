package assertion

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nlstep/nlstep/internal/session"
	"github.com/nlstep/nlstep/pkg/schema"
)

// tokenFields is the capture order for token material in responses. The
// first present field wins; the same order the dispatcher uses.
var tokenFields = []string{"token", "access_token", "jwtToken", "authToken"}

// ruleToken validates token expectations: the response (or session) must
// hold a non-empty token, and a token claimed to be a JWT must have three
// segments and a decodable header and payload.
func (e *Evaluator) ruleToken(_ context.Context, lower, _ string, sess *session.Context) (*schema.ValidationResult, bool, error) {
	if !strings.Contains(lower, "token") && !strings.Contains(lower, "jwt") {
		return nil, false, nil
	}

	tok := responseToken(sess.Current())
	if tok == "" {
		tok = sess.BearerToken()
	}

	if tok == "" {
		return &schema.ValidationResult{
			Passed:      false,
			Description: "no token in response or session",
			Expected:    "a non-empty token",
		}, true, nil
	}

	wantJWT := strings.Contains(lower, "jwt") ||
		strings.Contains(lower, "three segments") ||
		strings.Contains(lower, "3 segments") ||
		strings.Contains(lower, "valid")
	if !wantJWT {
		return &schema.ValidationResult{
			Passed:      true,
			Description: "token present",
			Actual:      maskToken(tok),
		}, true, nil
	}

	segments := len(strings.Split(tok, "."))
	if segments != 3 {
		return &schema.ValidationResult{
			Passed:      false,
			Description: fmt.Sprintf("token has %d segments, a JWT needs 3", segments),
			Expected:    "header.payload.signature",
			Actual:      maskToken(tok),
		}, true, nil
	}

	// Structural decode only. Signature verification needs a key the test
	// environment does not have, and is not what these steps assert.
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tok, jwt.MapClaims{}); err != nil {
		return &schema.ValidationResult{
			Passed:      false,
			Description: fmt.Sprintf("token is not a decodable JWT: %v", err),
			Expected:    "decodable JWT header and payload",
			Actual:      maskToken(tok),
		}, true, nil
	}

	return &schema.ValidationResult{
		Passed:      true,
		Description: "token is a well-formed JWT",
		Actual:      maskToken(tok),
	}, true, nil
}

// responseToken scans the current response for token material.
func responseToken(rec *schema.ExecutionRecord) string {
	obj := rec.JSONObject()
	if obj == nil {
		return ""
	}
	for _, field := range tokenFields {
		if v, ok := obj[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// maskToken keeps reports readable without leaking credentials into them.
func maskToken(tok string) string {
	if len(tok) <= 12 {
		return "***"
	}
	return tok[:8] + "..."
}
