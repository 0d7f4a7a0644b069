package main

import (
	"fmt"
	"os"
)

func main() {
	root := buildRootCmdWith(defaultOptions())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tensord:", err)
		os.Exit(1)
	}
}
