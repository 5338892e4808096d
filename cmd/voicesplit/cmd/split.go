package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/iammeizu/voicesplit/ebmlsplit"
	"github.com/iammeizu/voicesplit/observability"
	"github.com/iammeizu/voicesplit/parser"
)

var splitCmd = &cobra.Command{
	Use:   "split <input.webm> <output.webm>",
	Short: "Split a WebM file at the last keyframe before an offset",
	Long: `Split reads a WebM audio file, keeps the packets from the last keyframe at
or before --offset, and writes them followed by any incomplete tail of the
input. Use "-" to read from stdin or write to stdout.`,
	Args: cobra.ExactArgs(2),
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)

	splitCmd.Flags().Int("offset", 0, "Byte offset the kept keyframe must not exceed")
	splitCmd.Flags().Bool("adjust-timestamps", false, "Rebase timestamps so the output starts at zero")
	_ = splitCmd.MarkFlagRequired("offset")
}

func runSplit(cmd *cobra.Command, args []string) error {
	offset, err := cmd.Flags().GetInt("offset")
	if err != nil {
		return err
	}
	adjust, err := cmd.Flags().GetBool("adjust-timestamps")
	if err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("offset must not be negative: %d", offset)
	}

	in, err := readInput(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	logger := observability.WithComponent(slog.Default(), "ebmlsplit")
	r, err := ebmlsplit.New(parser.WebM{}, ebmlsplit.WithLogger(logger)).
		SplitResult(in, offset, adjust)
	if err != nil {
		return err
	}

	if err := writeOutput(args[1], r.Data); err != nil {
		return fmt.Errorf("writing %s: %w", args[1], err)
	}
	logger.Info("split written",
		slog.String("output", args[1]),
		slog.Int("keyframe_offset", r.KeyframeOffset),
		slog.Int("packets", r.Packets),
		slog.Int("head_bytes", r.HeadSize),
		slog.Int("tail_bytes", r.TailSize))
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
