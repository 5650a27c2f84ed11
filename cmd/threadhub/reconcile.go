package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"threadhub/internal/reconcile"
	"threadhub/internal/transcript"
)

func newReconcileCmd() *cobra.Command {
	var asText bool
	cmd := &cobra.Command{
		Use:   "reconcile <file|->",
		Short: "Fold a JSON array of messages into render turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := readMessages(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			res := reconcile.Fold(msgs)
			out := cmd.OutOrStdout()
			if asText {
				_, err := io.WriteString(out, transcript.Render(res.Turns))
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&asText, "text", false, "print a plain-text transcript instead of JSON")
	return cmd
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Show how the transcript changes between two message snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := readMessages(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			after, err := readMessages(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), transcript.Diff(
				transcript.Render(reconcile.Reconcile(before)),
				transcript.Render(reconcile.Reconcile(after)),
			))
			return err
		},
	}
}

// readMessages decodes a JSON array of messages from path, or from stdin
// when path is "-".
func readMessages(path string, stdin io.Reader) ([]reconcile.Message, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var msgs []reconcile.Message
	if err := json.NewDecoder(r).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decode messages from %s: %w", path, err)
	}
	return msgs, nil
}
