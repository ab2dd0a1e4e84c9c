// Package classifier decides, for each natural-language step, whether it is
// an API call, a browser interaction, or an assertion against prior results.
//
// Classification is layered: scenario tags override everything, assertion
// phrasing is checked next, then keyword signals with API signals outranking
// browser ones. Steps no rule recognizes fall through to a deterministic
// default, optionally refined by a semantic classifier.
package classifier

import (
	"context"

	"github.com/nlstep/nlstep/pkg/schema"
)

// Classifier assigns an ActionType to one step.
type Classifier interface {
	Classify(ctx context.Context, stepText string, mode schema.RoutingMode) (schema.ActionType, error)
}
