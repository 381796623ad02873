package main

import (
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"

	"tabula/internal/infra/canonical"
	cryptoinfra "tabula/internal/infra/crypto"
)

type signOutput struct {
	ContentHash string `json:"contentHash"`
	Author      string `json:"author"`
	Signature   string `json:"signature"`
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var contentHash string
	var actor string
	var keyHex string
	var keyBase64 string
	var outPath string

	fs.StringVar(&contentHash, "content-hash", "", "tagged content hash (sha256:<hex>)")
	fs.StringVar(&actor, "actor", "", "signing actor id")
	fs.StringVar(&keyHex, "key-hex", "", "ed25519 private key hex (seed or private key)")
	fs.StringVar(&keyBase64, "key-base64", "", "ed25519 private key base64 (seed or private key)")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if contentHash == "" || actor == "" {
		fmt.Fprintln(os.Stderr, "sign requires --content-hash and --actor")
		return 1
	}
	if (keyHex == "" && keyBase64 == "") || (keyHex != "" && keyBase64 != "") {
		fmt.Fprintln(os.Stderr, "sign requires exactly one of --key-hex or --key-base64")
		return 1
	}
	if !canonical.ValidDigest(contentHash) {
		fmt.Fprintln(os.Stderr, "sign requires a tagged sha256 content hash")
		return 1
	}

	var priv ed25519.PrivateKey
	var keyErr error
	if keyHex != "" {
		priv, keyErr = cryptoinfra.ParsePrivateKeyHex(keyHex)
	} else {
		priv, keyErr = cryptoinfra.ParsePrivateKeyBase64(keyBase64)
	}
	if keyErr != nil {
		fmt.Fprintf(os.Stderr, "parse private key: %v\n", keyErr)
		return 1
	}

	sig, err := cryptoinfra.Sign(priv, contentHash, actor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		return 1
	}

	out, err := canonical.Canonicalize(signOutput{
		ContentHash: contentHash,
		Author:      actor,
		Signature:   sig,
	})
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
