package main

import (
	"os"

	"github.com/wonny/demandcast/backend/cmd/demandcast/commands"
)

// main is the entry point for the demandcast CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/demandcast [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
