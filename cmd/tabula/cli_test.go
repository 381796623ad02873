package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const testSeedHex = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func readJSON(t *testing.T, path string, out any) {
	t.Helper()
	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func TestRunKeygenHashSignVerify(t *testing.T) {
	dir := t.TempDir()

	keysPath := filepath.Join(dir, "keys.json")
	if code := run([]string{"tabula", "keygen", "--seed-hex", testSeedHex, "--out", keysPath}); code != 0 {
		t.Fatalf("keygen exit code = %d, want 0", code)
	}
	var keys keygenOutput
	readJSON(t, keysPath, &keys)
	if keys.SeedHex != testSeedHex {
		t.Fatalf("seedHex = %q, want %q", keys.SeedHex, testSeedHex)
	}
	if keys.PublicKey == "" || keys.PublicKeyHex == "" {
		t.Fatalf("keygen output missing public key: %+v", keys)
	}

	payloadPath := filepath.Join(dir, "payload.json")
	payload := `{"title":"checksum drift","severity":2,"contentHash":"ignored"}`
	if err := os.WriteFile(payloadPath, []byte(payload), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	hashPath := filepath.Join(dir, "hash.json")
	if code := run([]string{"tabula", "hash", "--in", payloadPath, "--out", hashPath}); code != 0 {
		t.Fatalf("hash exit code = %d, want 0", code)
	}
	var hashed hashOutput
	readJSON(t, hashPath, &hashed)
	if len(hashed.ContentHash) != len("sha256:")+64 {
		t.Fatalf("contentHash = %q, want tagged sha256 digest", hashed.ContentHash)
	}

	// The exempt fields never reach the digest, so their values cannot
	// change it.
	strippedPath := filepath.Join(dir, "stripped.json")
	if err := os.WriteFile(strippedPath, []byte(`{"title":"checksum drift","severity":2}`), 0o644); err != nil {
		t.Fatalf("write stripped payload: %v", err)
	}
	strippedHashPath := filepath.Join(dir, "stripped-hash.json")
	if code := run([]string{"tabula", "hash", "--in", strippedPath, "--out", strippedHashPath}); code != 0 {
		t.Fatalf("hash exit code = %d, want 0", code)
	}
	var stripped hashOutput
	readJSON(t, strippedHashPath, &stripped)
	if stripped.ContentHash != hashed.ContentHash {
		t.Fatalf("hash over exempt field differs: %q vs %q", stripped.ContentHash, hashed.ContentHash)
	}

	sigPath := filepath.Join(dir, "sig.json")
	if code := run([]string{
		"tabula", "sign",
		"--content-hash", hashed.ContentHash,
		"--actor", "actor_11111111111111111111111111111111",
		"--key-hex", testSeedHex,
		"--out", sigPath,
	}); code != 0 {
		t.Fatalf("sign exit code = %d, want 0", code)
	}
	var signed signOutput
	readJSON(t, sigPath, &signed)
	if signed.Signature == "" {
		t.Fatalf("sign output missing signature: %+v", signed)
	}

	if code := run([]string{
		"tabula", "verify",
		"--content-hash", hashed.ContentHash,
		"--actor", "actor_11111111111111111111111111111111",
		"--sig", signed.Signature,
		"--pubkey-hex", keys.PublicKeyHex,
	}); code != 0 {
		t.Fatalf("verify exit code = %d, want 0", code)
	}

	// A different actor invalidates the signature and exits 2.
	if code := run([]string{
		"tabula", "verify",
		"--content-hash", hashed.ContentHash,
		"--actor", "actor_22222222222222222222222222222222",
		"--sig", signed.Signature,
		"--pubkey-hex", keys.PublicKeyHex,
	}); code != 2 {
		t.Fatalf("verify exit code = %d, want 2", code)
	}
}

func TestRunRejectsBadInvocations(t *testing.T) {
	cases := [][]string{
		{"tabula"},
		{"tabula", "frobnicate"},
		{"tabula", "hash"},
		{"tabula", "sign", "--content-hash", "sha256:ab", "--actor", "x"},
		{"tabula", "sign", "--content-hash", "not-a-digest", "--actor", "x", "--key-hex", testSeedHex},
		{"tabula", "verify", "--content-hash", "sha256:ab", "--actor", "x", "--sig", "y"},
	}
	for _, args := range cases {
		if code := run(args); code != 1 {
			t.Fatalf("run(%v) exit code = %d, want 1", args, code)
		}
	}
}
