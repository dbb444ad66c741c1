package planvalidate

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/genesis-deploy/genesis/internal/secretplan"
	"github.com/genesis-deploy/genesis/internal/secure"
)

// keyUsageTokens maps stdlib x509 usage bits to the openssl-style tokens
// the spec's key-usage reporting uses. non_repudiation and
// content_commitment are kept as aliases of the same bit: either name on
// a plan's usage list is satisfied by the other.
var keyUsageTokens = map[x509.KeyUsage]string{
	x509.KeyUsageDigitalSignature:  "digital_signature",
	x509.KeyUsageContentCommitment: "non_repudiation",
	x509.KeyUsageKeyEncipherment:   "key_encipherment",
	x509.KeyUsageDataEncipherment:  "data_encipherment",
	x509.KeyUsageKeyAgreement:      "key_agreement",
	x509.KeyUsageCertSign:          "key_cert_sign",
	x509.KeyUsageCRLSign:           "crl_sign",
}

var extKeyUsageTokens = map[x509.ExtKeyUsage]string{
	x509.ExtKeyUsageServerAuth: "server_auth",
	x509.ExtKeyUsageClientAuth: "client_auth",
}

func (v *Validator) validateX509(ctx context.Context, plan secretplan.Plan, byPath map[string]secretplan.Plan, stored map[string]string, export map[string]map[string]string) Result {
	cert, err := parseCertificate(stored["certificate"])
	if err != nil {
		return fail(plan, fmt.Sprintf("%s: failed to parse certificate: %v", plan.Path, err))
	}
	keyBuf, err := secure.NewSecureBuffer([]byte(stored["key"]))
	if err != nil {
		return fail(plan, fmt.Sprintf("%s: failed to protect private key material: %v", plan.Path, err))
	}
	defer keyBuf.Destroy()

	var lines []string
	status := StatusOK

	var modulusMatches bool
	parseErr := keyBuf.WithBytes(func(raw []byte) error {
		key, err := parsePrivateKey(string(raw))
		if err != nil {
			return err
		}
		certPub, isRSA := cert.PublicKey.(*rsa.PublicKey)
		modulusMatches = isRSA && certPub.N.Cmp(key.N) == 0
		return nil
	})
	if parseErr != nil {
		return fail(plan, fmt.Sprintf("%s: failed to parse private key: %v", plan.Path, parseErr))
	}
	if !modulusMatches {
		return fail(plan, fmt.Sprintf("%s: private key modulus does not match certificate public key", plan.Path))
	}
	lines = append(lines, "modulus: matches")

	if len(plan.Names) > 0 {
		if cert.Subject.CommonName != plan.Names[0] {
			status = maxStatus(status, StatusWarn)
			lines = append(lines, fmt.Sprintf("CN mismatch: expected %q, got %q", plan.Names[0], cert.Subject.CommonName))
		} else {
			lines = append(lines, "CN: "+cert.Subject.CommonName)
		}
		extras, missing := diffNames(plan.Names[1:], cert.DNSNames)
		if len(extras) > 0 || len(missing) > 0 {
			status = maxStatus(status, StatusWarn)
			if len(missing) > 0 {
				lines = append(lines, "SAN missing: "+strings.Join(missing, ", "))
			}
			if len(extras) > 0 {
				lines = append(lines, "SAN extra: "+strings.Join(extras, ", "))
			}
		} else {
			lines = append(lines, "SAN: matches")
		}
	}

	if plan.IsCA != cert.IsCA {
		status = maxStatus(status, StatusWarn)
		lines = append(lines, fmt.Sprintf("CA flag mismatch: plan wants %v, certificate reports %v", plan.IsCA, cert.IsCA))
	}

	now := time.Now()
	switch {
	case now.Before(cert.NotBefore):
		status = maxStatus(status, StatusWarn)
		lines = append(lines, fmt.Sprintf("not yet valid: starts %s", cert.NotBefore.Format(time.RFC3339)))
	case now.After(cert.NotAfter):
		status = maxStatus(status, StatusError)
		lines = append(lines, fmt.Sprintf("expired %s ago", now.Sub(cert.NotAfter).Round(time.Hour)))
	default:
		lines = append(lines, fmt.Sprintf("valid, expires in %s", cert.NotAfter.Sub(now).Round(time.Hour)))
	}

	selfSigned := bytes.Equal(cert.SubjectKeyId, cert.AuthorityKeyId) && len(cert.SubjectKeyId) > 0
	if len(cert.SubjectKeyId) == 0 && len(cert.AuthorityKeyId) == 0 {
		selfSigned = cert.Issuer.CommonName == cert.Subject.CommonName
	}
	if plan.SelfSigned != secretplan.SelfSignedNone && !selfSigned {
		status = maxStatus(status, StatusWarn)
		lines = append(lines, "expected self-signed but issuer/subject key IDs differ")
	}

	if plan.SignedBy != "" && plan.SelfSigned == secretplan.SelfSignedNone {
		signerLines, signerStatus := v.verifySigner(ctx, plan, byPath, cert, export)
		lines = append(lines, signerLines...)
		status = maxStatus(status, signerStatus)
	}

	present := usageTokens(cert)
	lines = append(lines, "key usage: "+strings.Join(present, ", "))
	if missing := missingUsage(plan, present); len(missing) > 0 {
		status = maxStatus(status, StatusWarn)
		lines = append(lines, "key usage missing: "+strings.Join(missing, ", "))
	}

	lines = append([]string{fmt.Sprintf("%s: fingerprint %s", plan.Path, fingerprint(cert))}, lines...)
	return Result{Plan: plan, Status: status, Message: strings.Join(lines, "\n")}
}

func (v *Validator) verifySigner(ctx context.Context, plan secretplan.Plan, byPath map[string]secretplan.Plan, cert *x509.Certificate, export map[string]map[string]string) ([]string, Status) {
	if signerStored, ok := export[plan.SignedBy]; ok {
		if signerCert, err := parseCertificate(signerStored["certificate"]); err == nil {
			if len(cert.AuthorityKeyId) > 0 && len(signerCert.SubjectKeyId) > 0 {
				if bytes.Equal(cert.AuthorityKeyId, signerCert.SubjectKeyId) {
					return []string{"signed by: " + plan.SignedBy + " (key ID match)"}, StatusOK
				}
				return []string{"signed by: authority key ID does not match " + plan.SignedBy}, StatusWarn
			}
		}
	}

	// Key IDs were absent or inconclusive: walk signed_by across the
	// plan set to build the full signing chain, then ask the store to
	// verify it in one subprocess call rather than hop-by-hop.
	if chain := signingChain(plan.SignedBy, byPath); len(chain) > 0 && v.chain != nil {
		args := append([]string{"x509", "verify-chain", plan.Path}, chain...)
		if _, _, err := v.chain.Query(ctx, args...); err == nil {
			return []string{"signed by: " + plan.SignedBy + " (chain verified: " + strings.Join(chain, " -> ") + ")"}, StatusOK
		}
		// Chain verification failing doesn't necessarily mean the
		// signature is bad — the store may not have every intermediate
		// loaded. Fall through to the single-hop store check below
		// before reporting a warning.
	}

	if v.chain != nil {
		_, stderr, err := v.chain.Query(ctx, "x509", "validate", plan.Path, "--signed-by", plan.SignedBy)
		if err == nil {
			return []string{"signed by: " + plan.SignedBy + " (verified via store)"}, StatusOK
		}
		return []string{"signed by: store chain verification failed: " + strings.TrimSpace(stderr)}, StatusWarn
	}

	return []string{"signed by: could not verify signing chain (no key IDs, no chain verifier)"}, StatusWarn
}

// signingChain walks plan.SignedBy transitively across byPath, returning
// the ordered list of signer paths from the immediate signer up to the
// topmost plan still present in the local plan set. It stops at a path
// outside the set (e.g. root_ca_path) or at a repeated path, so a signing
// cycle can never loop the walk.
func signingChain(start string, byPath map[string]secretplan.Plan) []string {
	var chain []string
	seen := map[string]bool{}
	cur := start
	for cur != "" && !seen[cur] {
		chain = append(chain, cur)
		seen[cur] = true
		next, ok := byPath[cur]
		if !ok || next.SignedBy == cur {
			break
		}
		cur = next.SignedBy
	}
	return chain
}

func parseCertificate(pemText string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("not a PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

func parsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("not a PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

func diffNames(wanted, got []string) (extras, missing []string) {
	wantSet := map[string]bool{}
	for _, n := range wanted {
		wantSet[n] = true
	}
	gotSet := map[string]bool{}
	for _, n := range got {
		gotSet[n] = true
	}
	for _, n := range got {
		if !wantSet[n] {
			extras = append(extras, n)
		}
	}
	for _, n := range wanted {
		if !gotSet[n] {
			missing = append(missing, n)
		}
	}
	sort.Strings(extras)
	sort.Strings(missing)
	return extras, missing
}

func usageTokens(cert *x509.Certificate) []string {
	var tokens []string
	for bit, name := range keyUsageTokens {
		if cert.KeyUsage&bit != 0 {
			tokens = append(tokens, name)
		}
	}
	for _, eku := range cert.ExtKeyUsage {
		if name, ok := extKeyUsageTokens[eku]; ok {
			tokens = append(tokens, name)
		}
	}
	sort.Strings(tokens)
	return tokens
}

func missingUsage(plan secretplan.Plan, present []string) []string {
	wanted := plan.Usage
	if len(wanted) == 0 {
		return nil
	}
	have := map[string]bool{}
	for _, t := range present {
		have[t] = true
	}
	// non_repudiation and content_commitment name the same bit.
	if have["non_repudiation"] {
		have["content_commitment"] = true
	}
	if have["content_commitment"] {
		have["non_repudiation"] = true
	}

	var missing []string
	for _, w := range wanted {
		if !have[w] {
			missing = append(missing, w)
		}
	}
	return missing
}

func fingerprint(cert *x509.Certificate) string {
	sum := sha256Sum(cert.Raw)
	return hex.EncodeToString(sum[:])
}
