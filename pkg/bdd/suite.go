// Package bdd binds the step engine to godog. Every step in a feature file
// goes through one universal handler; there are no per-step definitions to
// maintain.
package bdd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cucumber/godog"

	"github.com/nlstep/nlstep/internal/classifier"
	"github.com/nlstep/nlstep/internal/config"
	"github.com/nlstep/nlstep/internal/dispatch"
	"github.com/nlstep/nlstep/internal/executor"
	"github.com/nlstep/nlstep/pkg/schema"
)

// Binder builds one dispatcher per scenario and registers the universal
// step handler. A single binder serves a whole suite run.
type Binder struct {
	cfg    config.Config
	logger *slog.Logger
	sink   dispatch.Sink
}

// NewBinder creates a binder. The sink is optional.
func NewBinder(cfg config.Config, logger *slog.Logger, sink dispatch.Sink) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{cfg: cfg, logger: logger, sink: sink}
}

// scenarioStateKey carries the per-scenario dispatcher through the godog
// context, so concurrent scenarios never share state.
type scenarioStateKey struct{}

type scenarioState struct {
	dispatcher *dispatch.Dispatcher
	browser    *executor.BrowserExecutor
}

func stateFrom(ctx context.Context) *scenarioState {
	st, _ := ctx.Value(scenarioStateKey{}).(*scenarioState)
	return st
}

// Initialize registers scenario hooks and the universal step. Each scenario
// gets a fresh dispatcher, so no state crosses scenario boundaries.
func (b *Binder) Initialize(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		mode := schema.RoutingModeFromTags(tagNames(s))
		browser := b.newBrowser()
		d := dispatch.New(dispatch.Options{
			Classifier: b.newClassifier(),
			API: executor.NewAPIExecutor(executor.APIConfig{
				DefaultTimeout: b.cfg.RequestTimeout.Std(),
			}),
			Browser: browser,
			Mode:    mode,
			Config: dispatch.Config{
				BaseURL:         b.cfg.BaseURL,
				LoginPath:       b.cfg.LoginPath,
				FailurePhrases:  b.cfg.FailurePhrases,
				NegativeMarkers: b.cfg.NegativeMarkers,
			},
			Logger: b.logger,
			Sink:   b.sink,
		})
		b.logger.Info("scenario starting",
			slog.String("scenario", s.Name),
			slog.String("mode", string(mode)))
		return context.WithValue(ctx, scenarioStateKey{}, &scenarioState{
			dispatcher: d,
			browser:    browser,
		}), nil
	})

	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if st := stateFrom(ctx); st != nil {
			st.dispatcher.Session().Clear()
			if st.browser != nil {
				_ = st.browser.Close()
			}
		}
		return ctx, err
	})

	sc.Step(`^(.*)$`, func(ctx context.Context, step string) error {
		st := stateFrom(ctx)
		if st == nil {
			return fmt.Errorf("no scenario state in context")
		}
		out := st.dispatcher.RunStep(ctx, step)
		if out.Failed() {
			return fmt.Errorf("step failed (%s): %s", out.ActionType, out.Message)
		}
		return nil
	})
}

func (b *Binder) newClassifier() classifier.Classifier {
	rules := classifier.NewRulesClassifier(classifier.DefaultRules())
	if b.cfg.Classifier.BaseURL == "" {
		return rules
	}
	return classifier.NewSemanticClassifier(rules, classifier.SemanticConfig{
		BaseURL: b.cfg.Classifier.BaseURL,
		APIKey:  b.cfg.Classifier.APIKey,
		Model:   b.cfg.Classifier.Model,
	})
}

func (b *Binder) newBrowser() *executor.BrowserExecutor {
	if b.cfg.Browser.Command == "" {
		return nil
	}
	return executor.NewBrowserExecutor(executor.NewMCPBackend(executor.MCPBackendConfig{
		Command: b.cfg.Browser.Command,
		Args:    b.cfg.Browser.Args,
	}))
}

func tagNames(s *godog.Scenario) []string {
	names := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		names = append(names, t.Name)
	}
	return names
}

// RunOptions tunes one suite execution.
type RunOptions struct {
	Paths  []string
	Tags   string
	Format string
	Output io.Writer
	Sink   dispatch.Sink
}

// Run executes the feature files under the given options and returns the
// godog exit status: 0 on success, non-zero when any scenario failed.
func Run(name string, cfg config.Config, logger *slog.Logger, opts RunOptions) int {
	binder := NewBinder(cfg, logger, opts.Sink)

	format := opts.Format
	if format == "" {
		format = "pretty"
	}
	paths := opts.Paths
	if len(paths) == 0 {
		paths = []string{"features"}
	}

	godogOpts := &godog.Options{
		Format: format,
		Paths:  paths,
		Tags:   opts.Tags,
		Strict: true,
	}
	if opts.Output != nil {
		godogOpts.Output = opts.Output
	}

	suite := godog.TestSuite{
		Name:                name,
		ScenarioInitializer: binder.Initialize,
		Options:             godogOpts,
	}
	return suite.Run()
}
