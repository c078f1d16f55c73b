// Command wabbitlearn trains, evaluates, or serves a linear+FFM
// click/conversion prediction model.
package main

import (
	"os"

	"github.com/wabbitlearn/wabbitlearn/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
