// Command conjctl runs the forecasting pipeline from the command line and
// produces synthetic feeds and model artifacts.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
