package classifier

import (
	"context"
	"testing"

	"github.com/nlstep/nlstep/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classify(t *testing.T, step string, mode schema.RoutingMode) schema.ActionType {
	t.Helper()
	c := NewRulesClassifier(DefaultRules())
	at, err := c.Classify(context.Background(), step, mode)
	require.NoError(t, err)
	return at
}

func TestClassify_AssertionPhrases(t *testing.T) {
	steps := []string{
		"I should receive a successful response",
		"the response should contain the user email",
		"verify the token has three segments",
		"check that the profile name matches",
		"extract the user id from the response",
		"the result should indicate an error",
		"the expression `status == 200` should hold",
		"the response should match schema `{\"type\":\"object\"}`",
	}
	for _, s := range steps {
		assert.Equal(t, schema.ActionAssertion, classify(t, s, schema.RouteAuto), s)
	}
}

func TestClassify_AssertionPrefix(t *testing.T) {
	assert.Equal(t, schema.ActionAssertion,
		classify(t, "Then the status is shown", schema.RouteAuto))
	assert.Equal(t, schema.ActionAssertion,
		classify(t, "And the list is updated", schema.RouteAuto))
}

func TestClassify_APISignals(t *testing.T) {
	steps := []string{
		"I send a request to the users endpoint",
		`POST /api/users with JSON data: {"name": "x"}`,
		"GET http://localhost:8080/users/1",
		"delete the record via the api",
	}
	for _, s := range steps {
		assert.Equal(t, schema.ActionAPI, classify(t, s, schema.RouteAuto), s)
	}
}

func TestClassify_BrowserSignals(t *testing.T) {
	steps := []string{
		"I click the submit button",
		"I navigate to the dashboard",
		"I fill the username into the first form",
		"I open the settings menu",
	}
	for _, s := range steps {
		assert.Equal(t, schema.ActionBrowser, classify(t, s, schema.RouteAuto), s)
	}
}

func TestClassify_APIOutranksBrowser(t *testing.T) {
	// Both signal families present: API wins.
	at := classify(t, "I call the api after the page loads", schema.RouteAuto)
	assert.Equal(t, schema.ActionAPI, at)
}

func TestClassify_LoginSpecialCase(t *testing.T) {
	// Login intent with no UI vocabulary routes to the API backend.
	assert.Equal(t, schema.ActionAPI,
		classify(t, "I login as alice with password secret", schema.RouteAuto))

	// Login with UI vocabulary goes through the ordinary signals.
	assert.Equal(t, schema.ActionBrowser,
		classify(t, "I login using the login form", schema.RouteAuto))
}

func TestClassify_ExplicitModes(t *testing.T) {
	// Tags force the backend for execution steps.
	assert.Equal(t, schema.ActionAPI,
		classify(t, "I click the submit button", schema.RouteExplicitAPI))
	assert.Equal(t, schema.ActionBrowser,
		classify(t, "GET the users list", schema.RouteExplicitBrowser))

	// Verification steps stay assertions under explicit modes.
	assert.Equal(t, schema.ActionAssertion,
		classify(t, "I should receive a successful response", schema.RouteExplicitAPI))
	assert.Equal(t, schema.ActionAssertion,
		classify(t, "I should see the dashboard", schema.RouteExplicitBrowser))
}

func TestClassify_AmbiguousDefaultsToAPI(t *testing.T) {
	assert.Equal(t, schema.ActionAPI,
		classify(t, "I do the thing", schema.RouteAuto))
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewRulesClassifier(DefaultRules())
	step := "I send a request to the users endpoint"
	first, err := c.Classify(context.Background(), step, schema.RouteAuto)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := c.Classify(context.Background(), step, schema.RouteAuto)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMatches_WordBoundaries(t *testing.T) {
	assert.True(t, matches("call the api now", "api"))
	assert.False(t, matches("a rapid response", "api"))
	assert.True(t, matches("check the status code", "status code"))
	assert.False(t, matches("prototype it", "type"))
}

func TestClassify_ZeroRulesFallBackToDefaults(t *testing.T) {
	c := NewRulesClassifier(Rules{})
	at, err := c.Classify(context.Background(), "I click the button", schema.RouteAuto)
	require.NoError(t, err)
	assert.Equal(t, schema.ActionBrowser, at)
}
