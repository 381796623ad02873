package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"tabula/internal/infra/canonical"
	cryptoinfra "tabula/internal/infra/crypto"
)

type keygenOutput struct {
	SeedHex      string `json:"seedHex"`
	PublicKey    string `json:"publicKey"`
	PublicKeyHex string `json:"publicKeyHex"`
}

func runKeygen(args []string) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var seedHex string
	var outPath string

	fs.StringVar(&seedHex, "seed-hex", "", "ed25519 seed hex (32 bytes, generated when omitted)")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	var priv ed25519.PrivateKey
	if seedHex != "" {
		parsed, err := cryptoinfra.ParsePrivateKeyHex(seedHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse seed: %v\n", err)
			return 1
		}
		priv = parsed
	} else {
		_, generated, err := cryptoinfra.GenerateKeypair()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate keypair: %v\n", err)
			return 1
		}
		priv = generated
	}

	pub := priv.Public().(ed25519.PublicKey)
	output := keygenOutput{
		SeedHex:      hex.EncodeToString(priv.Seed()),
		PublicKey:    cryptoinfra.EncodePublicKey(pub),
		PublicKeyHex: hex.EncodeToString(pub),
	}

	out, err := canonical.Canonicalize(output)
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
