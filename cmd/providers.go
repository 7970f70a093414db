package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/endpoint-proxy/internal/providers"
	"github.com/mihaisavezi/endpoint-proxy/internal/translator"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported providers and configured connections",
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, _ []string) error {
	registry := providers.Default()
	translators := translator.Builtin()

	color.Blue("Supported providers:")

	for _, kind := range []providers.Kind{providers.KindOpenAI, providers.KindOpenRouter, providers.KindCursor, providers.KindCompatible} {
		endpoint, ok := registry.Get(kind)
		if !ok {
			continue
		}

		name := endpoint.Name()
		if kind == providers.KindCompatible {
			name = providers.CompatiblePrefix + "<name>"
		}

		embeddings := "no"
		if endpoint.EmbeddingsURL(nil) != "" {
			embeddings = "yes"
		}

		dialect := providers.Provider{ID: name, Kind: kind}.Format()

		fmt.Printf("  %-28s embeddings: %-4s dialect: %s\n", name, embeddings, dialect)
	}

	pairs := make([]string, 0)
	for _, reg := range translators.Pairs() {
		pairs = append(pairs, fmt.Sprintf("%s->%s", reg.Source, reg.Target))
	}

	fmt.Printf("\n  %-28s %s\n", "Translators:", strings.Join(pairs, ", "))

	if !cfgMgr.Exists() {
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("\nConfigured connections:")

	for _, p := range cfg.Providers {
		fmt.Printf("  %-20s %-40s %d models\n", p.Name, p.APIBase, len(p.GetAllowedModels()))
	}

	return nil
}
