package main

import (
	"fmt"
	"os"

	"github.com/CemAyyildiz/taskFlow/cmd/taskflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
