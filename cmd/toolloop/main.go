package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/martinemde/toolloop/agentloop"
	"github.com/martinemde/toolloop/config"
	"github.com/martinemde/toolloop/demotools"
	"github.com/martinemde/toolloop/unifiedllm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// TransportFactory creates the model transport for a configuration. The
// returned close function releases it.
type TransportFactory func(cfg *config.Config) (unifiedllm.Transport, func() error, error)

// DefaultTransportFactory routes calls through a gollm-backed client with
// retries for transient provider errors. When the provider is neither
// configured nor in the model catalog, every provider with credentials in
// the environment is registered instead.
func DefaultTransportFactory(cfg *config.Config) (unifiedllm.Transport, func() error, error) {
	retry := unifiedllm.WithMiddleware(unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy()))

	provider := cfg.Provider
	if provider == "" {
		if info := unifiedllm.GetModelInfo(cfg.Model); info != nil {
			provider = info.Provider
		}
	}
	if provider == "" {
		client := unifiedllm.NewClientFromEnv(retry)
		if len(client.Providers()) == 0 {
			return nil, nil, fmt.Errorf("cannot infer provider for model %q; set provider in the config or TOOLLOOP_PROVIDER", cfg.Model)
		}
		return client, client.Close, nil
	}

	adapter, err := unifiedllm.NewGollmAdapter(provider, os.Getenv(strings.ToUpper(provider)+"_API_KEY"),
		unifiedllm.WithModel(cfg.Model))
	if err != nil {
		return nil, nil, err
	}
	client := unifiedllm.NewClient(
		unifiedllm.WithProvider(provider, adapter),
		unifiedllm.WithDefaultProvider(provider),
		retry,
	)
	return client, client.Close, nil
}

// RunOptions holds the run command's inputs and injectable dependencies.
type RunOptions struct {
	Prompt     string
	Stream     bool
	Mode       string
	ConfigPath string
	Verbose    bool

	TransportFactory TransportFactory
	Stdout           io.Writer
	Stderr           io.Writer
}

var runOpts RunOptions

var rootCmd = &cobra.Command{
	Use:   "toolloop",
	Short: "toolloop - run a tool-calling agent loop",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a prompt through the agent with the demo tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(cmd.Context(), runOpts)
	},
}

var modelsProvider string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models in the built-in catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return ListModels(cmd.OutOrStdout(), modelsProvider)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.Prompt, "prompt", "p", "", "Prompt to send")
	runCmd.Flags().BoolVar(&runOpts.Stream, "stream", false, "Print events as they happen")
	runCmd.Flags().StringVar(&runOpts.Mode, "mode", "", "Tool calling mode: native, text, or off")
	runCmd.Flags().StringVarP(&runOpts.ConfigPath, "config", "c", "", "Config file (default ./toolloop.yaml)")
	runCmd.Flags().BoolVarP(&runOpts.Verbose, "verbose", "v", false, "Enable debug logging")
	_ = runCmd.MarkFlagRequired("prompt")
	rootCmd.AddCommand(runCmd)

	modelsCmd.Flags().StringVar(&modelsProvider, "provider", "", "Only list models for this provider")
	rootCmd.AddCommand(modelsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(level).With().Timestamp().Logger()
}

// Run executes one prompt and prints the outcome.
func Run(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := newLogger(stderr, opts.Verbose)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Mode != "" {
		cfg.ToolCallingMode = opts.Mode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	factory := opts.TransportFactory
	if factory == nil {
		factory = DefaultTransportFactory
	}
	transport, closeTransport, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	if closeTransport != nil {
		defer func() {
			if err := closeTransport(); err != nil {
				logger.Warn().Err(err).Msg("close transport")
			}
		}()
	}

	agentOpts, err := cfg.AgentOptions()
	if err != nil {
		return err
	}
	agentOpts = append(agentOpts,
		agentloop.WithTools(demotools.All(demotools.Workspace{Root: cfg.Workspace, AllowWrites: cfg.AllowWrites})...),
		agentloop.WithLogger(logger),
	)
	agent, err := agentloop.NewToolLoopAgent(transport, agentOpts...)
	if err != nil {
		return err
	}

	abort := interruptSignal(ctx, logger)
	gen := agentloop.GenerateOptions{
		Prompt:  opts.Prompt,
		Context: agentloop.NewAgentContext(currentUser(), agentloop.WithAbortSignal(abort)),
	}

	var result *agentloop.AgentResult
	if opts.Stream {
		h := agent.Stream(ctx, gen)
		printEvents(stdout, logger, h.Events())
		result, err = h.Result(ctx)
	} else {
		result, err = agent.Generate(ctx, gen)
	}
	if err != nil {
		return fmt.Errorf("agent error: %w", err)
	}

	if !opts.Stream {
		fmt.Fprintln(stdout, result.Text)
	}
	printSummary(stderr, result)
	return nil
}

// interruptSignal closes the returned channel on the first interrupt so the
// run stops at the next step boundary.
func interruptSignal(ctx context.Context, logger zerolog.Logger) <-chan struct{} {
	abort := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			logger.Warn().Msg("interrupted; stopping after the current step")
			close(abort)
		case <-ctx.Done():
		}
	}()
	return abort
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func printEvents(w io.Writer, logger zerolog.Logger, events <-chan agentloop.AgentStreamEvent) {
	for ev := range events {
		switch ev.Type {
		case agentloop.EventTextChunk:
			fmt.Fprint(w, ev.Delta)
		case agentloop.EventThought:
			logger.Debug().Int("step", ev.StepNumber).Str("thought", ev.Delta).Msg("thinking")
		case agentloop.EventToolCallStart:
			logger.Info().Str("tool", ev.ToolName).RawJSON("input", ev.Input).Msg("tool call")
		case agentloop.EventToolCallComplete:
			logger.Info().Str("tool", ev.ToolName).Msg("tool succeeded")
		case agentloop.EventToolCallError:
			msg := ""
			if ev.Output != nil {
				msg = ev.Output.Error
			}
			logger.Warn().Str("tool", ev.ToolName).Str("error", msg).Msg("tool failed")
		case agentloop.EventStepComplete:
			fmt.Fprintln(w)
		case agentloop.EventError:
			logger.Error().Err(ev.Err).Msg("run failed")
		}
	}
}

// ListModels writes one line per catalog model with its capabilities.
func ListModels(w io.Writer, provider string) error {
	models := unifiedllm.ListModels(provider)
	if len(models) == 0 {
		return fmt.Errorf("no models for provider %q", provider)
	}
	for _, m := range models {
		var features []string
		if m.SupportsTools {
			features = append(features, "tools")
		}
		if m.SupportsStreaming {
			features = append(features, "streaming")
		}
		if m.SupportsStructuredOutputs {
			features = append(features, "structured")
		}
		if m.SupportsReasoning {
			features = append(features, "reasoning")
		}
		fmt.Fprintf(w, "%-10s %-32s context=%-8d %s\n", m.Provider, m.ID, m.ContextWindow, strings.Join(features, ","))
	}
	return nil
}

func printSummary(w io.Writer, r *agentloop.AgentResult) {
	reason := string(r.StopReason())
	if reason == "" {
		reason = "none"
	}
	fmt.Fprintf(w, "\nsteps: %d  stop: %s  tokens: %d (prompt %d, completion %d)\n",
		len(r.Steps), reason, r.Usage.TotalTokens, r.Usage.TotalPromptTokens, r.Usage.TotalCompletionTokens)
	for _, tc := range r.ToolCallSummaries {
		status := "ok"
		if !tc.Success {
			status = "failed: " + tc.Error
		}
		fmt.Fprintf(w, "  step %d  %s  %s\n", tc.StepNumber, tc.ToolName, status)
	}
}
