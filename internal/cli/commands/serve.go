package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datalens-labs/datalens/internal/llm"
	"github.com/datalens-labs/datalens/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the model endpoint service",
		Long: `Run the HTTP service the analysis pipeline talks to.

The service prompts a chat-completions endpoint (OpenRouter by default)
and validates everything the model returns before handing it back.
Configure the upstream with the llm section of datalens.yaml or
DATALENS_LLM__* environment variables.`,
		Example: `  # Serve on the configured port
  datalens serve

  # Serve on a different port
  datalens serve --port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cc := NewCommandContext(cmd)
	cfg := cc.Cfg

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no LLM API key configured (set DATALENS_LLM__API_KEY or llm.api_key in datalens.yaml)")
	}

	completer := llm.NewClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Logger:      cc.Logger,
	})

	srv := server.NewServer(server.Config{
		Completer: completer,
		Port:      cfg.ServePort,
		Logger:    cc.Logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
