package main

import (
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"

	"tabula/internal/infra/canonical"
	cryptoinfra "tabula/internal/infra/crypto"
)

type verifyOutput struct {
	SignatureValid bool `json:"signatureValid"`
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var contentHash string
	var actor string
	var sig string
	var pubHex string
	var pubBase64 string

	fs.StringVar(&contentHash, "content-hash", "", "tagged content hash (sha256:<hex>)")
	fs.StringVar(&actor, "actor", "", "signing actor id")
	fs.StringVar(&sig, "sig", "", "base64 signature")
	fs.StringVar(&pubHex, "pubkey-hex", "", "ed25519 public key hex")
	fs.StringVar(&pubBase64, "pubkey-base64", "", "ed25519 public key base64")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if contentHash == "" || actor == "" || sig == "" {
		fmt.Fprintln(os.Stderr, "verify requires --content-hash, --actor, and --sig")
		return 1
	}
	if (pubHex == "" && pubBase64 == "") || (pubHex != "" && pubBase64 != "") {
		fmt.Fprintln(os.Stderr, "verify requires exactly one of --pubkey-hex or --pubkey-base64")
		return 1
	}

	var pub ed25519.PublicKey
	var keyErr error
	if pubHex != "" {
		pub, keyErr = cryptoinfra.ParsePublicKeyHex(pubHex)
	} else {
		pub, keyErr = cryptoinfra.ParsePublicKeyBase64(pubBase64)
	}
	if keyErr != nil {
		fmt.Fprintf(os.Stderr, "parse public key: %v\n", keyErr)
		return 1
	}

	valid := cryptoinfra.Verify(pub, contentHash, actor, sig)

	out, err := canonical.Canonicalize(verifyOutput{SignatureValid: valid})
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return 1
	}
	if err := writeOutput("", out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	if !valid {
		return 2
	}
	return 0
}
