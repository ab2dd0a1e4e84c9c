package assertion

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/nlstep/nlstep/pkg/schema"
	"github.com/stretchr/testify/assert"
)

// fakeJWT builds a structurally valid, unsigned-garbage JWT.
func fakeJWT(t *testing.T) string {
	t.Helper()
	enc := func(v any) string {
		b, _ := json.Marshal(v)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	header := enc(map[string]any{"alg": "HS256", "typ": "JWT"})
	payload := enc(map[string]any{"sub": "alice", "exp": 9999999999})
	return header + "." + payload + ".c2lnbmF0dXJl"
}

func TestToken_PresentInResponse(t *testing.T) {
	sess := sessionWith(t, 200, `{"token": "abc123def456ghi"}`)

	res := evaluate(t, "the response should contain a token", sess)
	assert.True(t, res.Passed)
}

func TestToken_AlternateFieldNames(t *testing.T) {
	for _, body := range []string{
		`{"access_token": "abc123def456ghi"}`,
		`{"jwtToken": "abc123def456ghi"}`,
		`{"authToken": "abc123def456ghi"}`,
	} {
		sess := sessionWith(t, 200, body)
		res := evaluate(t, "I should receive a token", sess)
		assert.True(t, res.Passed, body)
	}
}

func TestToken_Missing(t *testing.T) {
	sess := sessionWith(t, 200, `{"message": "ok"}`)

	res := evaluate(t, "the response should contain a token", sess)
	assert.False(t, res.Passed)
}

func TestToken_FallsBackToSessionToken(t *testing.T) {
	sess := sessionWith(t, 200, `{"message": "ok"}`)
	sess.SetBearerToken("abc123def456ghi")

	res := evaluate(t, "verify the token is present", sess)
	assert.True(t, res.Passed)
}

func TestToken_JWTThreeSegments(t *testing.T) {
	sess := sessionWith(t, 200, `{"token": "`+fakeJWT(t)+`"}`)

	res := evaluate(t, "the token should be a valid jwt with three segments", sess)
	assert.True(t, res.Passed)
}

func TestToken_JWTWrongSegmentCount(t *testing.T) {
	sess := sessionWith(t, 200, `{"token": "only.two"}`)

	res := evaluate(t, "verify the token has 3 segments", sess)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Description, "2 segments")
}

func TestToken_JWTUndecodable(t *testing.T) {
	sess := sessionWith(t, 200, `{"token": "!!!.???.###"}`)

	res := evaluate(t, "verify the token is a valid jwt", sess)
	assert.False(t, res.Passed)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "***", maskToken("short"))
	assert.Equal(t, "abcdefgh...", maskToken("abcdefghijklmnop"))
}

func TestResponseTokenOrder(t *testing.T) {
	// "token" wins over later names when both are present.
	rec := &schema.ExecutionRecord{ResponseJSON: map[string]any{
		"token":        "first",
		"access_token": "second",
	}}
	assert.Equal(t, "first", responseToken(rec))
}
