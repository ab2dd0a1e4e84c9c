package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nlstep/nlstep/internal/classifier"
	"github.com/nlstep/nlstep/pkg/schema"
)

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <step text>",
		Short: "Show how a step would be classified (debugging aid)",
		Args:  cobra.MinimumNArgs(1),
		RunE:  classifyRunE,
	}
	cmd.Flags().String("mode", "auto", "routing mode: auto, api, browser, mixed")
	return cmd
}

func classifyRunE(cmd *cobra.Command, args []string) error {
	modeFlag, _ := cmd.Flags().GetString("mode")
	mode := schema.RoutingModeFromTags([]string{modeFlag})

	step := strings.Join(args, " ")
	rules := classifier.NewRulesClassifier(classifier.DefaultRules())
	action, err := rules.Classify(cmd.Context(), step, mode)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", action)
	return nil
}
