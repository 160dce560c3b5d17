package main

import (
	"log"
	"os"

	"github.com/AtRiskMedia/threshold/internal/presentation/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		log.Printf("threshold: %v", err)
		os.Exit(1)
	}
}
