package assertion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrossSource_NameJoin(t *testing.T) {
	sess := sessionWith(t, 200, `{"ok": true}`)
	sess.SetUIData("name", "Alice Smith")
	sess.MergeAPIData(map[string]any{"firstName": "Alice", "lastName": "Smith"})

	res := evaluate(t, `the displayed "name" should match the api data`, sess)
	assert.True(t, res.Passed)
}

func TestCrossSource_NameMismatch(t *testing.T) {
	sess := sessionWith(t, 200, `{"ok": true}`)
	sess.SetUIData("name", "Alice Jones")
	sess.MergeAPIData(map[string]any{"firstName": "Alice", "lastName": "Smith"})

	res := evaluate(t, `the displayed "name" should match the api data`, sess)
	assert.False(t, res.Passed)
}

func TestCrossSource_PhoneSeparators(t *testing.T) {
	sess := sessionWith(t, 200, `{"ok": true}`)
	sess.SetUIData("phone", "(555) 123-4567")
	sess.MergeAPIData(map[string]any{"phone": "555.123.4567"})

	res := evaluate(t, `the "phone" shown on the profile should be consistent with the api`, sess)
	assert.True(t, res.Passed)
}

func TestCrossSource_DirectField(t *testing.T) {
	sess := sessionWith(t, 200, `{"ok": true}`)
	sess.SetUIData("email", "alice@example.com")
	sess.MergeAPIData(map[string]any{"email": "ALICE@example.com"})

	// Case differences are representation, not data.
	res := evaluate(t, `the displayed "email" should match the api data`, sess)
	assert.True(t, res.Passed)
}

func TestCrossSource_MissingUICapture(t *testing.T) {
	sess := sessionWith(t, 200, `{"ok": true}`)
	sess.MergeAPIData(map[string]any{"email": "alice@example.com"})

	res := evaluate(t, `the displayed "email" should match the api data`, sess)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Description, "browser")
}

func TestCrossSource_MissingAPIData(t *testing.T) {
	sess := sessionWith(t, 200, `{"ok": true}`)
	sess.SetUIData("email", "alice@example.com")

	res := evaluate(t, `the displayed "email" should match the api data`, sess)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Description, "API")
}

func TestCrossSource_UnquotedFieldGuess(t *testing.T) {
	sess := sessionWith(t, 200, `{"ok": true}`)
	sess.SetUIData("name", "Bob Ross")
	sess.MergeAPIData(map[string]any{"name": "Bob Ross"})

	res := evaluate(t, "the name displayed on the page should be consistent with the api", sess)
	assert.True(t, res.Passed)
}

func TestStripPhoneSeparators(t *testing.T) {
	assert.Equal(t, "+15551234567", stripPhoneSeparators("+1 (555) 123-4567"))
	assert.Equal(t, "5551234567", stripPhoneSeparators("555.123.4567"))
}

func TestNormalizeField_NameWhitespace(t *testing.T) {
	assert.Equal(t, "Alice Smith", normalizeField("name", "  Alice   Smith "))
}
