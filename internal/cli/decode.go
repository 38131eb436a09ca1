package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
)

// CodecOptions holds flags shared by decode and encode.
type CodecOptions struct {
	*RootOptions
	Config string
	Output string // encode only
}

// DecodedMessage is the JSON form of decode output.
type DecodedMessage struct {
	Type string `json:"type"`
	GUID string `json:"guid"`
	Size int    `json:"size"`
	Text string `json:"text"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Print the text form of an encoded message",
		Long: `Decode one binary message envelope and print its text form.

Use "-" to read the envelope from standard input.

Example:
  sidecar decode ./plots.bin
  sidecar decode - --config ./runner.yaml < ./video.bin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "runner configuration supplying the radar geometry")

	return cmd
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encode <file>",
		Short: "Encode the text form of a message",
		Long: `Parse a message in the text form printed by decode and write its
binary envelope.

Example:
  sidecar encode ./plots.yaml --output ./plots.bin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "runner configuration supplying the radar geometry")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the envelope here (required)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runDecode(opts *CodecOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	codec, err := codecFor(opts.Config)
	if err != nil {
		return err
	}
	b, err := readInput(cmd, path)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, "failed to read message", err)
	}
	formatter.VerboseLog("Read %d byte(s) from %s", len(b), path)

	m, err := codec.Decode(b)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeDecodeFailed, "failed to decode message", err)
	}
	text, err := codec.EncodeText(m)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeDecodeFailed, "failed to render message", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(DecodedMessage{
			Type: m.TypeKey().String(),
			GUID: m.Header().GUID.String(),
			Size: len(b),
			Text: string(text),
		})
	}
	_, err = cmd.OutOrStdout().Write(text)
	return err
}

func runEncode(opts *CodecOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	codec, err := codecFor(opts.Config)
	if err != nil {
		return err
	}
	src, err := readInput(cmd, path)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, "failed to read message", err)
	}

	m, err := codec.DecodeText(src)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeDecodeFailed, "failed to parse message", err)
	}
	b, err := codec.Encode(m)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeDecodeFailed, "failed to encode message", err)
	}
	if err := os.WriteFile(opts.Output, b, 0o644); err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to write message", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]interface{}{
			"type":   m.TypeKey().String(),
			"guid":   m.Header().GUID.String(),
			"output": opts.Output,
			"size":   len(b),
		})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s written to %s (%d bytes)\n", m.Header().GUID, opts.Output, len(b))
	return nil
}

// codecFor builds a codec for the radar in the configuration at path.
func codecFor(path string) (*msg.Codec, error) {
	radarCfg, err := loadRadar(path)
	if err != nil {
		return nil, err
	}
	codec, err := payload.NewCodec(radarCfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build codec", err)
	}
	return codec, nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
