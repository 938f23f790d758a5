package main

import (
	"log"

	"autoqa/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("autoqa: %v", err)
	}
}
