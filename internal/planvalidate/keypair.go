package planvalidate

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/genesis-deploy/genesis/internal/secretplan"
)

func validateRSA(plan secretplan.Plan, stored map[string]string) Result {
	priv, err := parsePrivateKey(stored["private"])
	if err != nil {
		return fail(plan, fmt.Sprintf("%s: failed to parse private key: %v", plan.Path, err))
	}
	pub, err := parseRSAPublicKey(stored["public"])
	if err != nil {
		return fail(plan, fmt.Sprintf("%s: failed to parse public key: %v", plan.Path, err))
	}
	if priv.N.Cmp(pub.N) != 0 {
		return fail(plan, fmt.Sprintf("%s: stored public key does not match private key", plan.Path))
	}
	if plan.Size > 0 && priv.N.BitLen() != plan.Size {
		return warn(plan, fmt.Sprintf("%s: key size %d does not match requested %d", plan.Path, priv.N.BitLen(), plan.Size))
	}
	return ok(plan, fmt.Sprintf("%s: %d-bit RSA keypair is consistent", plan.Path, priv.N.BitLen()))
}

func parseRSAPublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("not a PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return rsaPub, nil
}

func validateSSH(plan secretplan.Plan, stored map[string]string) Result {
	signer, err := ssh.ParsePrivateKey([]byte(stored["private"]))
	if err != nil {
		return fail(plan, fmt.Sprintf("%s: failed to parse ssh private key: %v", plan.Path, err))
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(stored["public"]))
	if err != nil {
		return fail(plan, fmt.Sprintf("%s: failed to parse ssh public key: %v", plan.Path, err))
	}
	if string(signer.PublicKey().Marshal()) != string(pub.Marshal()) {
		return fail(plan, fmt.Sprintf("%s: stored public key does not match private key", plan.Path))
	}

	gotFingerprint := ssh.FingerprintSHA256(pub)
	if want := stored["fingerprint"]; want != "" && want != gotFingerprint {
		return warn(plan, fmt.Sprintf("%s: stored fingerprint %q does not match computed %q", plan.Path, want, gotFingerprint))
	}
	return ok(plan, fmt.Sprintf("%s: ssh keypair is consistent (%s)", plan.Path, gotFingerprint))
}
