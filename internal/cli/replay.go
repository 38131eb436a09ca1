package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
	"github.com/roach88/sidecar/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	Recording string // optional - lists recordings when empty
	Type      string // optional - only messages of this kind
	Config    string // optional - radar geometry for decoding
}

// RecordingSummary describes one recording in the listing.
type RecordingSummary struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Runner    string    `json:"runner"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Messages  int       `json:"messages"`
}

// ReplayedMessage holds the replay result for one recorded message.
type ReplayedMessage struct {
	Seq       int64  `json:"seq"`
	Pipeline  string `json:"pipeline"`
	Channel   string `json:"channel"`
	Type      string `json:"type"`
	GUID      string `json:"guid"`
	Identical bool   `json:"identical"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Recording string            `json:"recording"`
	Path      string            `json:"path"`
	Messages  []ReplayedMessage `json:"messages"`
	Total     int               `json:"total"`
	Verified  bool              `json:"verified"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Decode recorded messages and verify they round-trip",
		Long: `Read messages from a recordings database, decode each one, print its
text form and verify that re-encoding reproduces the recorded bytes.

Without --recording the recordings in the database are listed.

Exit codes:
  0 - Every message decoded and re-encoded identically
  1 - A message failed to decode or re-encoded differently
  2 - Command error (database not found, unknown recording, etc.)

Examples:
  sidecar replay --db ./recordings.db
  sidecar replay --db ./recordings.db --recording 0190f3a2-...
  sidecar replay --db ./recordings.db --recording 0190f3a2-... --type Extractions --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to recordings database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Recording, "recording", "", "replay this recording only")
	cmd.Flags().StringVar(&opts.Type, "type", "", "replay messages of this kind only")
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "runner configuration supplying the radar geometry")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// store.Open creates missing databases; replay only reads existing ones.
	if _, err := os.Stat(opts.Database); err != nil {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, "failed to open database", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	if opts.Recording == "" {
		return listRecordings(ctx, st, formatter)
	}

	var key msg.TypeKey
	if opts.Type != "" {
		k, ok := msg.ParseTypeKey(opts.Type)
		if !ok || !k.Valid() {
			return fail(formatter, ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("unknown message type %q", opts.Type), nil)
		}
		key = k
	}

	radarCfg, err := loadRadar(opts.Config)
	if err != nil {
		return err
	}
	codec, err := payload.NewCodec(radarCfg)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidInput, "failed to build codec", err)
	}

	rec, err := st.GetRecording(ctx, opts.Recording)
	if errors.Is(err, store.ErrRecordingNotFound) {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("recording %s not found", opts.Recording), err)
	}
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "failed to read recording", err)
	}

	recorded, err := st.ReadMessages(ctx, rec.ID, key)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "failed to read messages", err)
	}
	formatter.VerboseLog("Replaying %d message(s) from %s", len(recorded), rec.ID)

	result := ReplayResult{
		Recording: rec.ID,
		Path:      rec.Path,
		Messages:  make([]ReplayedMessage, 0, len(recorded)),
		Total:     len(recorded),
		Verified:  true,
	}
	for _, m := range recorded {
		replayed := replayMessage(codec, m)
		if !replayed.Identical {
			result.Verified = false
		}
		result.Messages = append(result.Messages, replayed)
	}

	if opts.Format == "json" {
		return outputReplayJSON(formatter.Writer, result)
	}
	return outputReplayText(formatter.Writer, result)
}

// replayMessage decodes one recorded message and re-encodes it.
func replayMessage(codec *msg.Codec, rm store.RecordedMessage) ReplayedMessage {
	out := ReplayedMessage{
		Seq:      rm.Seq,
		Pipeline: rm.Pipeline,
		Channel:  rm.Channel,
		Type:     rm.TypeKey.String(),
		GUID:     rm.GUID,
	}

	m, err := codec.Decode(rm.Payload)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	text, err := codec.EncodeText(m)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Text = string(text)

	again, err := codec.Encode(m)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Identical = bytes.Equal(again, rm.Payload)
	if !out.Identical {
		out.Error = fmt.Sprintf("re-encoded %d byte(s), recorded %d", len(again), len(rm.Payload))
	}
	return out
}

func listRecordings(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	recs, err := st.ListRecordings(ctx)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "failed to list recordings", err)
	}

	summaries := make([]RecordingSummary, 0, len(recs))
	for _, r := range recs {
		n, err := st.CountMessages(ctx, r.ID)
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeDatabase, "failed to count messages", err)
		}
		summaries = append(summaries, RecordingSummary{
			ID:        r.ID,
			Path:      r.Path,
			Runner:    r.Runner,
			StartedAt: r.StartedAt,
			StoppedAt: r.StoppedAt,
			Messages:  n,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}

	w := formatter.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No recordings found in database.")
		return nil
	}
	fmt.Fprintf(w, "Recordings: %d\n\n", len(summaries))
	for _, s := range summaries {
		state := "stopped"
		if s.StoppedAt.IsZero() {
			state = "active"
		}
		fmt.Fprintf(w, "%s  %s\n", s.ID, s.Path)
		fmt.Fprintf(w, "  runner %s, %d message(s), started %s, %s\n",
			s.Runner, s.Messages, s.StartedAt.Format(time.RFC3339), state)
	}
	return nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(w io.Writer, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.Verified {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeDecodeFailed,
			Message: "replay verification failed",
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Verified {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText prints every message's text form followed by a verdict.
func outputReplayText(w io.Writer, result ReplayResult) error {
	fmt.Fprintf(w, "Recording %s (%s): %d message(s)\n", result.Recording, result.Path, result.Total)

	failed := 0
	for _, m := range result.Messages {
		fmt.Fprintf(w, "\n--- seq %d %s/%s\n", m.Seq, m.Pipeline, m.Channel)
		if m.Text != "" {
			fmt.Fprint(w, m.Text)
		}
		if !m.Identical {
			failed++
			fmt.Fprintf(w, "✗ %s: %s\n", m.GUID, m.Error)
		}
	}
	fmt.Fprintln(w)

	if result.Verified {
		fmt.Fprintf(w, "✓ %d message(s) decoded and re-encoded identically\n", result.Total)
		return nil
	}

	fmt.Fprintf(w, "✗ Replay verification failed: %d of %d message(s)\n", failed, result.Total)
	return NewExitError(ExitFailure, "replay verification failed")
}
