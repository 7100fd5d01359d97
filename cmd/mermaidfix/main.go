// Command mermaidfix repairs mermaid diagrams in files or on stdin.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cexll/repowiki/internal/logging"
	"github.com/cexll/repowiki/internal/mermaid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errWouldChange makes --check exit non-zero.
var errWouldChange = errors.New("some inputs are not sanitized")

type options struct {
	markdown bool
	check    bool
	write    bool
	verbose  bool
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var opts options
	var logger *zap.Logger

	cmd := &cobra.Command{
		Use:   "mermaidfix [file...]",
		Short: "Repair mermaid diagram syntax",
		Long: `mermaidfix applies the diagram sanitizer to each file, or to stdin when no
file is given. Use --markdown for documents with fenced mermaid blocks.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = logging.NewDevelopment(opts.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.write && len(args) == 0 {
				return errors.New("--write needs at least one file")
			}
			if opts.write && opts.check {
				return errors.New("--write and --check are mutually exclusive")
			}
			return run(cmd, opts, logger, args, stdin, stdout)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.Flags().BoolVarP(&opts.markdown, "markdown", "m", false, "treat input as markdown and fix every mermaid block")
	cmd.Flags().BoolVarP(&opts.check, "check", "c", false, "report inputs that would change and exit non-zero")
	cmd.Flags().BoolVarP(&opts.write, "write", "w", false, "rewrite files in place")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	return cmd
}

func run(cmd *cobra.Command, opts options, logger *zap.Logger, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		out, changed := fix(string(data), opts.markdown)
		if opts.check {
			if changed {
				fmt.Fprintln(cmd.ErrOrStderr(), "<stdin>")
				return errWouldChange
			}
			return nil
		}
		_, err = io.WriteString(stdout, out+"\n")
		return err
	}

	dirty := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		out, changed := fix(string(data), opts.markdown)
		logger.Debug("processed", zap.String("file", path), zap.Bool("changed", changed))

		switch {
		case opts.check:
			if changed {
				dirty++
				fmt.Fprintln(cmd.ErrOrStderr(), path)
			}
		case opts.write:
			if !changed {
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if !strings.HasSuffix(out, "\n") {
				out += "\n"
			}
			if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			logger.Info("rewrote file", zap.String("file", path))
		default:
			if _, err := io.WriteString(stdout, out+"\n"); err != nil {
				return err
			}
		}
	}

	if dirty > 0 {
		return fmt.Errorf("%w: %d file(s)", errWouldChange, dirty)
	}
	return nil
}

// fix returns the sanitized input and whether it differs from the input
// after trimming.
func fix(input string, markdown bool) (string, bool) {
	if markdown {
		out, changed := mermaid.SanitizeMarkdown(strings.TrimRight(input, "\n"))
		return out, changed > 0
	}
	out := mermaid.Sanitize(input)
	return out, out != strings.TrimSpace(input)
}
