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

// pqlink is a command-line client for a single logical PostgreSQL
// connection: running SQL, listening for notifications, and streaming
// COPY data over a link that survives reconnects.
package main

import (
	"os"

	"github.com/pqlink/pqlink/go/cmd/pqlink/command"
)

func main() {
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
