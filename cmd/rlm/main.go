// Command rlm is a thin CLI wrapper around the Environment Facade: a
// single query in, a single result map out. It does not expose the full
// configuration surface of Environment.Config — just enough to drive one
// call from a shell, the same minimal scope the source repos that ship a
// cmd/ alongside their library give their own CLI entry points.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rlmkit/rlm/env"
)

var (
	apiKey        string
	baseURL       string
	model         string
	persistentDir string
	maxIterations int
	refine        bool
	learn         bool
	verifyClaims  bool
	spec          string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rlm",
		Short: "Run one recursive language model query against a fresh environment",
	}
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("RLM_API_KEY"), "LLM provider API key")
	root.PersistentFlags().StringVar(&baseURL, "base-url", os.Getenv("RLM_BASE_URL"), "LLM provider base URL")
	root.PersistentFlags().StringVar(&model, "model", firstNonEmpty(os.Getenv("RLM_MODEL"), "gpt-4o"), "default model")
	root.PersistentFlags().StringVar(&persistentDir, "store-dir", os.Getenv("RLM_STORE_DIR"), "persistent store directory (disposable if empty)")
	root.AddCommand(queryCmd())
	return root
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Run a single query and print the result map as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(args[0])
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "override the per-query iteration cap")
	cmd.Flags().BoolVar(&refine, "refine", false, "run the answer through the refinement pipeline")
	cmd.Flags().BoolVar(&learn, "learn", false, "persist the refinement outcome as a learning signal")
	cmd.Flags().BoolVar(&verifyClaims, "verify-claims", false, "include per-claim verification in the result")
	cmd.Flags().StringVar(&spec, "spec", "", "output schema instructions for the agent's final answer")
	return cmd
}

func runQuery(question string) error {
	e, err := env.CreateEnv(env.Config{
		APIKey:        apiKey,
		BaseURL:       baseURL,
		DefaultModel:  model,
		PersistentDir: persistentDir,
	})
	if err != nil {
		return fmt.Errorf("rlm: create environment: %w", err)
	}
	defer func() {
		if err := e.Dispose(); err != nil {
			fmt.Fprintf(os.Stderr, "rlm: dispose: %v\n", err)
		}
	}()

	result, err := e.Query(context.Background(), question, env.QueryOptions{
		MaxIterations: maxIterations,
		Refine:        refine,
		Learn:         learn,
		VerifyClaims:  verifyClaims,
		Spec:          spec,
	})
	if err != nil {
		return fmt.Errorf("rlm: query: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
