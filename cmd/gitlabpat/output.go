package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

// outputFormatter writes command results as JSON or human-readable text.
type outputFormatter struct {
	w        io.Writer
	jsonMode bool
}

// newOutputFormatter creates a formatter based on the command's --json flag.
func newOutputFormatter(cmd *cobra.Command) *outputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &outputFormatter{w: cmd.OutOrStdout(), jsonMode: jsonMode}
}

func (f *outputFormatter) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(f.w, string(data))
	return err
}

// table prints rows under header, or v as JSON in JSON mode.
func (f *outputFormatter) table(v any, header []string, rows [][]string) error {
	if f.jsonMode {
		return f.printJSON(v)
	}
	tw := tabwriter.NewWriter(f.w, 0, 4, 2, ' ', 0)
	writeRow(tw, header)
	for _, row := range rows {
		writeRow(tw, row)
	}
	return tw.Flush()
}

func writeRow(w io.Writer, cols []string) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}

// validation prints a FormValidation and turns a failed one into an error so
// the process exits non-zero.
func (f *outputFormatter) validation(v model.FormValidation) error {
	if f.jsonMode {
		if err := f.printJSON(map[string]string{"kind": string(v.Kind), "message": v.Message}); err != nil {
			return err
		}
	} else if v.IsOK() {
		fmt.Fprintln(f.w, v.Message)
	}
	if !v.IsOK() {
		return fmt.Errorf("%s", v.Message)
	}
	return nil
}
