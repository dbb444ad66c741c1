package secretplan_test

import (
	"testing"

	"github.com/genesis-deploy/genesis/internal/kit"
	"github.com/genesis-deploy/genesis/internal/secretplan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadKit(t *testing.T, raw string) *kit.Metadata {
	t.Helper()
	m, err := kit.Load([]byte(raw))
	require.NoError(t, err)
	return m
}

func TestParseX509Plan(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
certificates:
  base:
    tls/ca:
      is_ca: true
    tls/server:
      names: [api.example, www.example]
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{})

	var ca, server *secretplan.Plan
	for i := range plans {
		switch plans[i].Path {
		case "tls/ca":
			ca = &plans[i]
		case "tls/server":
			server = &plans[i]
		}
	}
	require.NotNil(t, ca)
	require.NotNil(t, server)
	assert.True(t, ca.IsCA)
	assert.Equal(t, []string{"api.example", "www.example"}, server.Names)
	assert.Equal(t, secretplan.KindX509, server.Kind)
}

func TestParseCredentialKinds(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    ssh/host: "ssh 2048"
    rsa/signer: "rsa 4096 fixed"
    net/dhparams: "dhparams 2048"
    app/creds:password: "random 32 fmt bcrypt at app/creds:bcrypt"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{})

	byPath := map[string]secretplan.Plan{}
	for _, p := range plans {
		byPath[p.Path] = p
	}

	require.Contains(t, byPath, "ssh/host")
	assert.Equal(t, secretplan.KindSSH, byPath["ssh/host"].Kind)
	assert.Equal(t, 2048, byPath["ssh/host"].Size)

	require.Contains(t, byPath, "rsa/signer")
	assert.True(t, byPath["rsa/signer"].Fixed)

	require.Contains(t, byPath, "net/dhparams")
	assert.Equal(t, secretplan.KindDHParams, byPath["net/dhparams"].Kind)

	require.Contains(t, byPath, "app/creds")
	random := byPath["app/creds"]
	assert.Equal(t, secretplan.KindRandom, random.Kind)
	assert.Equal(t, "password", random.Key)
	assert.Equal(t, "bcrypt", random.Format)
}

func TestParseRandomWithoutKeyIsError(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    app/creds: "random 32"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{})
	require.Len(t, plans, 1)
	assert.Equal(t, secretplan.KindError, plans[0].Kind)
	assert.Contains(t, plans[0].ErrorMessage, "hashmap")
}

func TestParseSSHSpecWithKeySuffixIsError(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    "foo:bar": "ssh 2048"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{})
	require.Len(t, plans, 1)
	assert.Equal(t, secretplan.KindError, plans[0].Kind)
	assert.Contains(t, plans[0].ErrorMessage, "':'")
}

func TestParseRSASpecWithKeySuffixIsError(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    "foo:bar": "rsa 2048"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{})
	require.Len(t, plans, 1)
	assert.Equal(t, secretplan.KindError, plans[0].Kind)
	assert.Contains(t, plans[0].ErrorMessage, "':'")
}

func TestParseDHParamSpecWithKeySuffixIsError(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    "foo:bar": "dhparams 2048"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{})
	require.Len(t, plans, 1)
	assert.Equal(t, secretplan.KindError, plans[0].Kind)
	assert.Contains(t, plans[0].ErrorMessage, "':'")
}

func TestParseUnrecognizedSpecIsError(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    weird/thing: "not a real spec"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{})
	require.Len(t, plans, 1)
	assert.Equal(t, secretplan.KindError, plans[0].Kind)
}

func TestParseFilterIncludesOnlyMatching(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    ssh/host: "ssh 2048"
    rsa/signer: "rsa 4096"
`)

	filter, err := secretplan.ParseFilter("/^ssh/")
	require.NoError(t, err)

	plans := secretplan.Parse(m, nil, secretplan.Options{Filter: filter})
	require.Len(t, plans, 1)
	assert.Equal(t, "ssh/host", plans[0].Path)
}

func TestParseFeaturesAlwaysIncludeBase(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    always/here: "ssh 2048"
  extra:
    only/with-feature: "ssh 2048"
`)

	withoutExtra := secretplan.Parse(m, nil, secretplan.Options{})
	assert.Len(t, withoutExtra, 1)

	withExtra := secretplan.Parse(m, []string{"extra"}, secretplan.Options{})
	assert.Len(t, withExtra, 2)
}

func TestParseValidateRejectsOutOfRangeKeySize(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    rsa/signer: "rsa 512"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{Validate: true})
	require.Len(t, plans, 1)
	assert.Equal(t, secretplan.KindError, plans[0].Kind)
	assert.Contains(t, plans[0].ErrorMessage, "size must be between")
}

func TestParseWithoutValidateAllowsOutOfRangeKeySize(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
credentials:
  base:
    rsa/signer: "rsa 512"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{})
	require.Len(t, plans, 1)
	assert.Equal(t, secretplan.KindRSA, plans[0].Kind)
}

func TestParseValidateRejectsMalformedValidFor(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
certificates:
  base:
    tls/server:
      names: [api.example]
      valid_for: "forever"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{Validate: true})
	require.Len(t, plans, 1)
	assert.Equal(t, secretplan.KindError, plans[0].Kind)
	assert.Contains(t, plans[0].ErrorMessage, "valid_for")
}

func TestParseValidateAcceptsWellFormedValidFor(t *testing.T) {
	t.Parallel()

	m := loadKit(t, `
name: k
version: "1.0"
certificates:
  base:
    tls/server:
      names: [api.example]
      valid_for: "90d"
`)

	plans := secretplan.Parse(m, nil, secretplan.Options{Validate: true})
	require.Len(t, plans, 1)
	assert.Equal(t, secretplan.KindX509, plans[0].Kind)
}

func TestIsCAPath(t *testing.T) {
	t.Parallel()

	assert.True(t, secretplan.IsCAPath("tls/ca"))
	assert.True(t, secretplan.IsCAPath("ca"))
	assert.False(t, secretplan.IsCAPath("tls/server"))
}
