package assertion

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlstep/nlstep/internal/session"
	"github.com/nlstep/nlstep/pkg/schema"
)

// crossSourceMarkers are the phrasings that compare what the browser showed
// against what the API returned.
var crossSourceMarkers = []string{
	"displayed", "shown on", "on the page", "consistent", "match the api",
	"matches the api", "same as the api", "ui and api",
}

// ruleCrossSource compares a field captured from the browser against the
// API data bag, applying the known representation differences: UI shows a
// joined full name where the API splits first and last, and phone numbers
// differ only in separators.
func (e *Evaluator) ruleCrossSource(_ context.Context, lower, original string, sess *session.Context) (*schema.ValidationResult, bool, error) {
	marked := false
	for _, m := range crossSourceMarkers {
		if strings.Contains(lower, m) {
			marked = true
			break
		}
	}
	if !marked {
		return nil, false, nil
	}

	field := firstQuoted(original)
	if field == "" {
		field = guessCrossSourceField(lower)
	}
	if field == "" {
		return &schema.ValidationResult{
			Passed:      false,
			Description: "cross-source check names no field",
		}, true, nil
	}

	uiVal, uiOK := sess.UIData()[field]
	if !uiOK {
		return &schema.ValidationResult{
			Passed:      false,
			Description: fmt.Sprintf("no %q captured from the browser", field),
			Expected:    field,
		}, true, nil
	}

	apiVal, apiOK := apiFieldValue(field, sess)
	if !apiOK {
		return &schema.ValidationResult{
			Passed:      false,
			Description: fmt.Sprintf("no %q known from the API", field),
			Expected:    field,
			Actual:      uiVal,
		}, true, nil
	}

	normUI := normalizeField(field, uiVal)
	normAPI := normalizeField(field, apiVal)
	return &schema.ValidationResult{
		Passed:      strings.EqualFold(normUI, normAPI),
		Description: fmt.Sprintf("%q consistent between browser and API", field),
		Expected:    apiVal,
		Actual:      uiVal,
	}, true, nil
}

func guessCrossSourceField(lower string) string {
	for _, f := range []string{"name", "email", "phone", "username", "address"} {
		if strings.Contains(lower, f) {
			return f
		}
	}
	return ""
}

// apiFieldValue resolves a field from the API bag, assembling the full name
// from its parts when the API never sent a joined one.
func apiFieldValue(field string, sess *session.Context) (string, bool) {
	bag := sess.APIData()
	if v, ok := bag[field]; ok {
		return valueString(v), true
	}
	if field == "name" {
		first, fok := bag["firstName"].(string)
		last, lok := bag["lastName"].(string)
		if fok && lok {
			return first + " " + last, true
		}
	}
	return "", false
}

// normalizeField applies per-field canonical forms before comparison.
func normalizeField(field, value string) string {
	v := strings.TrimSpace(value)
	switch field {
	case "phone":
		return stripPhoneSeparators(v)
	case "name":
		return strings.Join(strings.Fields(v), " ")
	default:
		return v
	}
}

// stripPhoneSeparators reduces a phone number to its digits, keeping a
// leading plus.
func stripPhoneSeparators(v string) string {
	var sb strings.Builder
	for i, r := range v {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		} else if r == '+' && i == 0 {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
