package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "keygen":
		return runKeygen(args[2:])
	case "hash":
		return runHash(args[2:])
	case "sign":
		return runSign(args[2:])
	case "verify":
		return runVerify(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "tabula"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s keygen [--seed-hex <hex>] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s hash --in <payload.json> [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s sign --content-hash <sha256:hex> --actor <id> (--key-hex <hex>|--key-base64 <b64>) [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s verify --content-hash <sha256:hex> --actor <id> --sig <b64> (--pubkey-hex <hex>|--pubkey-base64 <b64>)\n", name)
}
