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
	"errors"
	"fmt"
	"io"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pqlink/pqlink/go/pqwire"
	"github.com/pqlink/pqlink/go/session"
)

func newExecCommand(c *cli) *cobra.Command {
	var (
		file    string
		retries int
	)

	cmd := &cobra.Command{
		Use:   "exec [sql]...",
		Short: "Run SQL statements",
		Long: `Run one or more SQL statements on a single logical connection.

Statements are given as arguments, or read from a file with --file, in
which case the file is split into individual statements with a real
PostgreSQL parser (semicolons inside strings and dollar quotes are
safe).

With --retries above zero, a statement that fails because the
connection broke is retried on a freshly established link.

Examples:
  pqlink exec "SELECT version()"
  pqlink exec --file schema.sql
  pqlink exec --retries 2 "INSERT INTO events(kind) VALUES ('ping')"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			statements := args
			if file != "" {
				fromFile, err := readStatements(c.fs, file)
				if err != nil {
					return err
				}
				statements = append(statements, fromFile...)
			}
			if len(statements) == 0 {
				return errors.New("no SQL to run: pass statements as arguments or use --file")
			}

			conn, err := c.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			for _, sql := range statements {
				res, err := conn.Exec(sql, retries)
				if err != nil {
					return fmt.Errorf("running %q: %w", abbreviate(sql), err)
				}
				printResult(cmd.OutOrStdout(), res)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read statements from a SQL file")
	cmd.Flags().IntVar(&retries, "retries", 0, "reconnect-and-retry attempts when the connection breaks mid-statement")
	return cmd
}

// readStatements splits a SQL file into statements.
func readStatements(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	stmts, err := pg_query.SplitWithParser(string(data), true)
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", path, err)
	}
	out := make([]string, 0, len(stmts))
	for _, s := range stmts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// printResult writes a row set as tab-separated text, or the command
// tag for statements without rows.
func printResult(w io.Writer, res session.Result) {
	pr, ok := res.Raw.(*pqwire.Result)
	if !ok || pr.Status != pqwire.StatusTuplesOK {
		fmt.Fprintln(w, res.Raw.Tag())
		return
	}

	names := make([]string, len(pr.Fields))
	for i, f := range pr.Fields {
		names[i] = f.Name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	for row := range pr.Len() {
		cells := make([]string, len(pr.Fields))
		for col := range cells {
			v, notNull := pr.Value(row, col)
			if !notNull {
				v = "\\N"
			}
			cells[col] = v
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	fmt.Fprintln(w, pr.Tag())
}

func abbreviate(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > 60 {
		return sql[:57] + "..."
	}
	return sql
}
