package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"boltforge/internal/config"
	"boltforge/internal/filetree"
	"boltforge/internal/llm"
	"boltforge/internal/protocol"
	"boltforge/internal/sandbox"
	"boltforge/internal/session"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	var (
		dir string
		run bool
	)

	cmd := &cobra.Command{
		Use:     "build <prompt>",
		Aliases: []string{"b"},
		Short:   "Generate a project from a prompt and write it to a directory",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("prompt cannot be empty")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if dir != "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return fmt.Errorf("resolve directory: %w", err)
				}
				cfg.SandboxDir = abs
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := llm.NewAnthropic(llm.AnthropicConfig{
				APIKey:    cfg.AnthropicAPIKey,
				Model:     cfg.AnthropicModel,
				BaseURL:   cfg.AnthropicBaseURL,
				MaxTokens: cfg.ChatMaxTokens,
			})

			if err := sandbox.DirIsolation(cfg.SandboxDir)(); err != nil {
				return fmt.Errorf("%w: %v", sandbox.ErrNotIsolated, err)
			}
			local, err := sandbox.Boot(ctx, sandbox.LocalConfig{Root: cfg.SandboxDir})
			if err != nil {
				return fmt.Errorf("prepare %s: %w", cfg.SandboxDir, err)
			}
			defer local.Shutdown()

			out := &lockedWriter{w: cmd.ErrOrStderr()}

			var (
				sb   session.Sandbox = &diskSandbox{local: local}
				orch *sandbox.Orchestrator
			)
			if run {
				registry := sandbox.NewRegistry(func(context.Context) (sandbox.Handle, error) {
					return local, nil
				}, nil)
				orch = sandbox.NewOrchestrator(registry, sandbox.ParseCommand(cfg.InstallCmd), sandbox.ParseCommand(cfg.DevCmd))
				sb = orch
			}

			ctrl := session.NewController("cli", "", svc, svc, sb, func(e session.Event) {
				printEvent(out, e)
			})
			defer ctrl.Terminate()

			if err := ctrl.Start(ctx, prompt); err != nil {
				return fmt.Errorf("build project: %w", err)
			}

			tree := ctrl.Tree()
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d file(s) to %s\n", filetree.CountFiles(tree), local.WorkDir())
			fmt.Fprint(cmd.OutOrStdout(), filetree.Render(tree))

			if orch == nil {
				return nil
			}
			if len(tree) == 0 {
				return errors.New("the reply contained no files to run")
			}

			url, err := orch.WaitReady(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return fmt.Errorf("start project: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Preview: %s\n", url)
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to write the project into (default: SANDBOX_DIR)")
	cmd.Flags().BoolVarP(&run, "run", "r", false, "Install dependencies and start the dev server")
	return cmd
}

// diskSandbox writes the project into the sandbox directory without
// running anything.
type diskSandbox struct {
	local *sandbox.Local

	mu      sync.Mutex
	mounted bool
}

func (d *diskSandbox) Mount(ctx context.Context, tree filetree.Tree) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.local.Mount(ctx, sandbox.ToMountTree(tree)); err != nil {
		return false, err
	}
	first := !d.mounted
	d.mounted = true
	return first, nil
}

func (d *diskSandbox) Start(ctx context.Context, sink sandbox.OutputSink) error {
	return nil
}

func (d *diskSandbox) OnReady(fn func(url string))  {}
func (d *diskSandbox) OnFailure(fn func(err error)) {}
func (d *diskSandbox) Phase() sandbox.Phase         { return sandbox.PhaseIdle }
func (d *diskSandbox) ReadyURL() string             { return "" }

func (d *diskSandbox) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mounted = false
}

// lockedWriter serialises writes from session event callbacks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func printEvent(out *lockedWriter, e session.Event) {
	switch p := e.Payload.(type) {
	case protocol.SandboxOutputPayload:
		out.printf("[%s] %s\n", p.Stream, p.Data)
	case protocol.SandboxFailedPayload:
		out.printf("sandbox failed: %s\n", p.Message)
	case protocol.ErrorPayload:
		out.printf("error: %s\n", p.Message)
	}
}
