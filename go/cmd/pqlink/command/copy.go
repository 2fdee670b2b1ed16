// Copyright 2025 The Pqlink Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
)

func newCopyInCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy-in <table>",
		Short: "Bulk-load rows from stdin into a table",
		Long: `Read COPY text-format rows from standard input and stream them into
the given table. Each input line is one row, tab-separated, with \N
for NULL, exactly as COPY ... FROM STDIN expects.

Examples:
  pqlink copy-in users < users.tsv
  generate-rows | pqlink copy-in events`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := c.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			table, err := conn.QuoteName(args[0])
			if err != nil {
				return err
			}
			if _, err := conn.Exec("COPY "+table+" FROM STDIN", 0); err != nil {
				return err
			}

			rows := 0
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
			for scanner.Scan() {
				if err := conn.WriteCopyLine(scanner.Text()); err != nil {
					return fmt.Errorf("after %d rows: %w", rows, err)
				}
				rows++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			if err := conn.EndCopyWrite(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "COPY %d\n", rows)
			return nil
		},
	}
	return cmd
}

func newCopyOutCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy-out <table>",
		Short: "Dump a table to stdout in COPY text format",
		Long: `Stream the contents of a table to standard output, one
tab-separated row per line.

Examples:
  pqlink copy-out users > users.tsv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := c.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			table, err := conn.QuoteName(args[0])
			if err != nil {
				return err
			}
			if _, err := conn.Exec("COPY "+table+" TO STDOUT", 0); err != nil {
				return err
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()
			for {
				line, done, err := conn.ReadCopyLine()
				if err != nil {
					return err
				}
				if done {
					return nil
				}
				fmt.Fprintln(out, line)
			}
		},
	}
	return cmd
}
