package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/comfy-mcp/comfy-mcp/internal/runninghub"
	"github.com/comfy-mcp/comfy-mcp/internal/server"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
	"github.com/comfy-mcp/comfy-mcp/pkg/fxapp"
	"github.com/comfy-mcp/comfy-mcp/pkg/logger"
)

type CommandConfig struct {
	Version   string
	BuildTime string
}

func CreateRootCommand(cmdConfig *CommandConfig) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "comfy-mcp",
		Short: "ComfyUI MCP Server - publish ComfyUI workflows as MCP tools",
		Long: `The ComfyUI MCP Server turns ComfyUI API-format workflows into Model Context
Protocol tools. Workflows run on a local ComfyUI server or on RunningHub.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, cmdConfig)
		},
	}

	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(CreateVersionCommand(cmdConfig))
	rootCmd.AddCommand(CreateInspectCommand())
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./config.yaml, /etc/comfy-mcp/, $HOME/.comfy-mcp/)")
	flags.String("transport", "stdio", "MCP transport: stdio or sse")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("workflows-dir", "data/custom_workflows", "directory workflows are loaded from")
}

func loadConfig(cmd *cobra.Command) (*config.ServerConfig, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.LoadOptions{ConfigFile: file, Flags: cmd.Flags()})
	if err != nil {
		return nil, fmt.Errorf("failed to load the configuration: %w", err)
	}
	return cfg, nil
}

func CreateVersionCommand(cmdConfig *CommandConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.ErrOrStderr()
			fmt.Fprintf(out, "ComfyUI MCP Server\n")
			fmt.Fprintf(out, "Version: %s\n", cmdConfig.Version)
			fmt.Fprintf(out, "Build time: %s\n", cmdConfig.BuildTime)
		},
	}
}

// CreateInspectCommand prints the metadata a workflow file would be published with.
func CreateInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <workflow.json>",
		Short: "Show the tool parameters discovered in a workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			toolName, _ := cmd.Flags().GetString("tool-name")
			return inspectWorkflow(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], toolName)
		},
	}
	cmd.Flags().String("tool-name", "", "tool name to use instead of the file name")
	return cmd
}

func inspectWorkflow(ctx context.Context, out io.Writer, cfg *config.ServerConfig, path, toolName string) error {
	log := logger.NewSlogLogger(cfg, nil)

	var remote workflow.RemoteGraphSource
	if cfg.RunningHub.Configured() {
		cache := runninghub.NewWorkflowCache(cfg.RunningHub.WorkflowCacheTTL, log)
		defer cache.Stop()
		remote = runninghub.NewClient(cfg.RunningHub, cache, log)
	}

	loader := workflow.NewLoader(workflow.NewParser(log), remote, log)
	wf, err := loader.Load(ctx, path, toolName)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := workflow.ValidateTitle(wf.Metadata.Title); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*workflow.Metadata
		Signature []*workflow.Param `json:"signature"`
	}{wf.Metadata, wf.Metadata.Signature()})
}

func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, cmdConfig *CommandConfig) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	server.Version = cmdConfig.Version
	log := logger.NewSlogLogger(cfg, nil).With(
		slog.String("version", cmdConfig.Version),
		slog.String("build_time", cmdConfig.BuildTime),
		slog.String("component", "cli"),
	)
	log.Info("Starting MCP server", "transport", cfg.Transport.Type, "workflows_dir", cfg.Workflows.Dir)

	app := fxapp.New(cfg)
	if err := app.Err(); err != nil {
		return fmt.Errorf("failed to build the application: %w", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start the server: %w", err)
	}

	sig := <-app.Wait()
	log.Info("Shutting down", "signal", sig.Signal.String())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	return app.Stop(stopCtx)
}
