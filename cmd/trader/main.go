// Command trader runs the signal to order execution core.
package main

import (
	"fmt"
	"os"

	"github.com/Bing4Ever/quant-trading-sub001/internal/cli"
	"github.com/Bing4Ever/quant-trading-sub001/internal/logging"
)

func main() {
	app := &cli.App{Logger: logging.NewLogger()}

	if err := cli.NewRootCmd(app).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
