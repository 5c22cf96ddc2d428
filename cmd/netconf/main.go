package main

import (
	"fmt"
	"os"

	"github.com/networkguild/netconf/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "netconf:", err)
		os.Exit(1)
	}
}
