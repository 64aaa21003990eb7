// Command camconform runs the rpicam-mjpeg conformance harness.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/camconform/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
