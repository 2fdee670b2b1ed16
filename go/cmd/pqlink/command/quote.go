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
	"fmt"

	"github.com/spf13/cobra"
)

func newQuoteCommand(c *cli) *cobra.Command {
	var asIdentifier bool

	cmd := &cobra.Command{
		Use:   "quote <value>...",
		Short: "Quote values for safe interpolation into SQL",
		Long: `Escape and quote each value as an SQL string literal, or as an
identifier with --identifier. Quoting is connection-scoped: the rules
depend on settings the server reports, so this connects first.

Examples:
  pqlink quote "it's a value"
  pqlink quote --identifier "column name"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := c.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			for _, arg := range args {
				var quoted string
				var err error
				if asIdentifier {
					quoted, err = conn.QuoteName(arg)
				} else {
					quoted, err = conn.Quote(arg)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), quoted)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asIdentifier, "identifier", false, "quote as an SQL identifier instead of a string literal")
	return cmd
}

func newConfigCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Print the configuration that results from merging defaults, the
config file, environment variables, and flags. The password is
redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dump, err := c.cfg.Dump()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), dump)
			return nil
		},
	}
}
