// Command myo is a thin CLI front end over the myosotis store: init,
// inspect, and edit a store file from the shell. All semantics live in
// the engine packages; this binary only parses flags, loads/saves, and
// prints.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).With().Timestamp().Logger()

	root := newRootCmd(log)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "myo:", err)
		os.Exit(1)
	}
}
