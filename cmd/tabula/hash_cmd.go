package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"tabula/internal/domain"
	"tabula/internal/infra/canonical"
)

type hashOutput struct {
	ContentHash string `json:"contentHash"`
}

func runHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var inPath string
	var outPath string

	fs.StringVar(&inPath, "in", "", "payload JSON path")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if inPath == "" {
		fmt.Fprintln(os.Stderr, "hash requires --in")
		return 1
	}

	payloadBytes, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read payload: %v\n", err)
		return 1
	}
	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		fmt.Fprintf(os.Stderr, "decode payload: %v\n", err)
		return 1
	}

	hash, err := canonical.HashExcluding(payload, domain.HashExemptFields...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash payload: %v\n", err)
		return 1
	}

	out, err := canonical.Canonicalize(hashOutput{ContentHash: hash})
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
