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
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pqlink/pqlink/go/session"
)

// printingReceiver writes each notification on its channel as one line.
type printingReceiver struct {
	channel string
	out     io.Writer
}

func (r *printingReceiver) Channel() string { return r.channel }

func (r *printingReceiver) Notify(payload string, backendPID int) error {
	if payload == "" {
		fmt.Fprintf(r.out, "%s (pid %d)\n", r.channel, backendPID)
	} else {
		fmt.Fprintf(r.out, "%s (pid %d): %s\n", r.channel, backendPID, payload)
	}
	return nil
}

func newListenCommand(c *cli) *cobra.Command {
	var (
		timeout time.Duration
		count   int
	)

	cmd := &cobra.Command{
		Use:   "listen <channel>...",
		Short: "Wait for notifications on one or more channels",
		Long: `Subscribe to NOTIFY channels and print notifications as they arrive.

The subscriptions survive connection loss: if the link drops and comes
back, every LISTEN is replayed automatically.

Examples:
  pqlink listen jobs
  pqlink listen --count 1 --timeout 30s jobs alerts`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := c.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			for _, channel := range args {
				r := &printingReceiver{channel: channel, out: cmd.OutOrStdout()}
				if err := conn.AddReceiver(r); err != nil {
					return fmt.Errorf("listening on %s: %w", channel, err)
				}
			}

			received := 0
			for count <= 0 || received < count {
				var (
					n   int
					err error
				)
				if timeout > 0 {
					n, err = conn.AwaitNotificationTimeout(timeout)
				} else {
					n, err = conn.AwaitNotification()
				}
				if err != nil {
					return err
				}
				if n == 0 && timeout > 0 {
					return fmt.Errorf("no notification within %s", timeout)
				}
				received += n
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up if no notification arrives within this duration (0 waits forever)")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many notifications (0 runs until interrupted)")
	return cmd
}

var _ session.Receiver = (*printingReceiver)(nil)
