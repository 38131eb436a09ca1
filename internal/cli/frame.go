package cli

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
)

// FrameOptions holds flags for the frame command.
type FrameOptions struct {
	*RootOptions
	Config   string
	Producer string
}

// FrameReport is the JSON form of frame output.
type FrameReport struct {
	Tag      string `json:"tag"`
	SystemID string `json:"system_id"`
	Text     string `json:"text"`
}

// NewFrameCommand creates the frame command.
func NewFrameCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FrameOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "frame <hex>",
		Short: "Decode a legacy transducer frame",
		Long: `Decode a legacy transducer frame given as hex and print the TSPI
report it produces. Whitespace in the hex string is ignored.

The radar site from --config is used to derive range, azimuth and
elevation; the default site is used otherwise.

Example:
  sidecar frame "01 1201 ea60 ..."`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrame(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "runner configuration supplying the radar site")
	cmd.Flags().StringVar(&opts.Producer, "producer", "frame", "producer named in the report")

	return cmd
}

func runFrame(opts *FrameOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	b, err := hex.DecodeString(strings.Join(strings.Fields(arg), ""))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidInput, "frame is not valid hex", err)
	}

	radarCfg, err := loadRadar(opts.Config)
	if err != nil {
		return err
	}
	codec, err := payload.NewCodec(radarCfg)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidInput, "failed to build codec", err)
	}

	h := msg.NewHeader(msg.NewGUID(opts.Producer, msg.TypeTSPI, 0), time.Now(), nil)
	t, ok := payload.DecodeFrame(h, radarCfg.Origin(), b)
	if !ok {
		return fail(formatter, ExitFailure, ErrCodeDecodeFailed, "not a transducer frame", nil)
	}
	text, err := codec.EncodeText(t)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeDecodeFailed, "failed to render report", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(FrameReport{
			Tag:      t.Tag,
			SystemID: t.Attributes["system_id"],
			Text:     string(text),
		})
	}
	_, err = cmd.OutOrStdout().Write(text)
	return err
}
