// Command syncctl drives syncs from the shell: coordinate, inspect batches, retry failures.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd(openApp).Execute(); err != nil {
		os.Exit(1)
	}
}
