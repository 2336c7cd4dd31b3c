package main

import (
	"os"

	"github.com/netlify/mcp-gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
