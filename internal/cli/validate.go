package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sidecar/internal/config"
	"github.com/roach88/sidecar/internal/payload"
	"github.com/roach88/sidecar/internal/runner"
)

// ValidationIssue is one problem found in a configuration file.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Pipelines int               `json:"pipelines"`
	Stages    int               `json:"stages"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a runner configuration without starting it",
		Long: `Validate a runner configuration file.

Checks the file against the configuration schema, then builds every
pipeline to verify stage kinds, parameters and channel wiring. Nothing is
started and no database or NATS connection is opened.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(path)
	if err != nil {
		var verr *config.ValidationError
		if !errors.As(err, &verr) {
			return fail(formatter, ExitCommandError, ErrCodeNotFound, "failed to load configuration", err)
		}
		return outputValidationErrors(formatter, []ValidationIssue{issueFrom(verr)})
	}

	result, issues := validateWiring(cfg, formatter)
	if len(issues) > 0 {
		return outputValidationErrors(formatter, issues)
	}
	return outputValidateSuccess(formatter, path, result)
}

// validateWiring builds each pipeline's stages the way the runner would.
func validateWiring(cfg *config.Config, formatter *OutputFormatter) (ValidationResult, []ValidationIssue) {
	result := ValidationResult{Valid: true, Pipelines: len(cfg.Pipelines)}

	codec, err := payload.NewCodec(cfg.Radar)
	if err != nil {
		return result, []ValidationIssue{{Field: "radar", Message: err.Error(), Code: ErrCodeInvalidInput}}
	}

	var issues []ValidationIssue
	for i, pc := range cfg.Pipelines {
		formatter.VerboseLog("Validating pipeline: %s (%d stage(s))", pc.Name, len(pc.Stages))
		result.Stages += len(pc.Stages)
		if _, err := runner.NewStream(pc, cfg.Radar, codec); err != nil {
			issues = append(issues, ValidationIssue{
				Field:   fmt.Sprintf("pipelines.%d", i),
				Message: err.Error(),
				Code:    ErrCodeInvalidInput,
			})
		}
	}
	return result, issues
}

func issueFrom(verr *config.ValidationError) ValidationIssue {
	issue := ValidationIssue{Field: verr.Field, Message: verr.Message, Code: ErrCodeInvalidInput}
	if verr.Pos.IsValid() {
		issue.Line = verr.Pos.Line()
		issue.Column = verr.Pos.Column()
	}
	return issue
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, path string, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s valid: %d pipeline(s), %d stage(s)\n", path, result.Pipelines, result.Stages)
	return nil
}

// outputValidationErrors outputs every issue and fails with ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d, column %d\n", issue.Line, issue.Column)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", issue.Code, issue.Field, issue.Message)
	}
	return failure
}
