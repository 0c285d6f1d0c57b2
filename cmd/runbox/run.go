package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/codeblock"
	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/language"
	"github.com/isdmx/runbox/logger"
	"github.com/isdmx/runbox/sandbox"
)

var langFlag string

var runCmd = &cobra.Command{
	Use:   "run [file|-]",
	Short: "Run a source file and print its output",
	Long: `Run a source file in a sandbox and print its output.

With no file or "-", the source is read from stdin. Without --lang the input
is treated as a chat message and the first fenced code block is run, using
the language named on its opening fence.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&langFlag, "lang", "l", "", "Language id or alias (see 'runbox languages')")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	registry, err := language.New(cfg.Sandbox.LanguagesFile)
	if err != nil {
		return err
	}

	source, err := readSource(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	req, err := buildRequest(langFlag, source)
	if err != nil {
		return err
	}

	rt, err := sandbox.NewRuntime(log, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Debug("failed to close runtime", zap.Error(err))
		}
	}()

	executor := sandbox.NewExecutorFromConfig(log, cfg, registry, rt)
	return execute(cmd.Context(), executor, req, cfg, cmd.OutOrStdout())
}

func execute(ctx context.Context, executor sandbox.SandboxExecutor, req sandbox.Request, cfg *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.GetRunTimeout())
	defer cancel()

	output, err := executor.Execute(ctx, req)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, output)
	return err
}

// readSource reads the named file, or stdin for "-" or no argument
func readSource(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read source file: %w", err)
	}
	return string(data), nil
}

func buildRequest(lang, source string) (sandbox.Request, error) {
	if lang != "" {
		return sandbox.Request{Language: lang, Code: source}, nil
	}

	block, err := codeblock.Extract(source)
	if errors.Is(err, codeblock.ErrNoCodeBlock) {
		return sandbox.Request{}, errors.New("no --lang given and no fenced code block in input")
	}
	if err != nil {
		return sandbox.Request{}, err
	}
	return sandbox.Request{Language: block.Language, Code: block.Code}, nil
}
