package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"oscan-intake/internal/llm"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the configured model variants in fallback order",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := llm.Credentials{Gemini: cfg.GeminiAPIKey, OpenAI: cfg.OpenAIAPIKey, Anthropic: cfg.AnthropicAPIKey}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ORDER\tMODEL\tPROVIDER\tSTATUS")
			for i, model := range cfg.ModelVariants {
				kind, ok := llm.KindForModel(model)
				status := "ready"
				switch {
				case !ok:
					status = "unknown family"
				case !llm.KeyConfigured(creds.Key(kind)):
					status = "no credential"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, model, kind, status)
			}
			return w.Flush()
		},
	}
}
