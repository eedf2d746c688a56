// Command go-analysis-harness runs external analyzer scripts as
// managed child processes: concurrent identical invocations collapse
// to one child, every process gets a lifetime deadline with a bounded
// termination grace window, and stdout results are captured and parsed
// as JSON documents.
package main

import (
	"os"

	"github.com/randomizedcoder/go-analysis-harness/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}
