package secretplan

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/genesis-deploy/genesis/internal/kit"
)

// Options configure parsing.
type Options struct {
	RootCAPath string
	Validate   bool
	Filter     *Filter
}

// Filter is a slash-delimited pattern with optional negation and
// case-insensitivity, applied to plan paths after parsing:
// "/pattern/[i]" or "!/pattern/[i]".
type Filter struct {
	re     *regexp.Regexp
	negate bool
}

// ParseFilter compiles a filter expression of the documented form.
func ParseFilter(expr string) (*Filter, error) {
	negate := strings.HasPrefix(expr, "!")
	if negate {
		expr = expr[1:]
	}
	if !strings.HasPrefix(expr, "/") {
		return nil, NewErrorPlan("", "filter must be /pattern/ or !/pattern/").asError()
	}
	end := strings.LastIndex(expr, "/")
	if end <= 0 {
		return nil, NewErrorPlan("", "filter missing closing /").asError()
	}
	pattern := expr[1:end]
	flags := expr[end+1:]
	if strings.Contains(flags, "i") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Filter{re: re, negate: negate}, nil
}

func (f *Filter) match(path string) bool {
	if f == nil {
		return true
	}
	m := f.re.MatchString(path)
	if f.negate {
		return !m
	}
	return m
}

var validForPattern = regexp.MustCompile(`^[1-9][0-9]*[ymdh]$`)

const (
	minKeySize = 1024
	maxKeySize = 16384
)

var randomPattern = regexp.MustCompile(`^random\s+(\d+)(?:\s+fmt\s+(\S+)(?:\s+at\s+(\S+))?)?(?:\s+allowed-chars\s+(\S+))?(\s+fixed)?$`)
var sshPattern = regexp.MustCompile(`^ssh\s+(\d+)(\s+fixed)?$`)
var rsaPattern = regexp.MustCompile(`^rsa\s+(\d+)(\s+fixed)?$`)
var dhparamPattern = regexp.MustCompile(`^dhparams?\s+(\d+)(\s+fixed)?$`)

// Parse walks meta's certificates.<feature> and credentials.<feature>
// subtrees for every feature in features (with "base" always prepended),
// flattens them to a {path -> Plan} map, and returns an ordered sequence:
// x509 plans first (ordering is applied by the caller via internal/planorder),
// then all other types sorted by path.
func Parse(meta *kit.Metadata, features []string, opts Options) []Plan {
	all := append([]string{"base"}, features...)
	seen := map[string]bool{}
	ordered := make([]string, 0, len(all))
	for _, f := range all {
		if !seen[f] {
			seen[f] = true
			ordered = append(ordered, f)
		}
	}

	plans := map[string]Plan{}

	for _, feature := range ordered {
		if tree, ok := meta.FeatureTree("certificates", feature); ok {
			walkCertificates(tree, "", plans)
		}
		if tree, ok := meta.FeatureTree("credentials", feature); ok {
			walkCredentials(tree, "", plans)
		}
	}

	var x509Plans, otherPlans []Plan
	for _, p := range plans {
		if opts.Filter != nil && !opts.Filter.match(p.Path) {
			continue
		}
		if opts.Validate {
			p = validate(p)
		}
		if p.Kind == KindX509 {
			x509Plans = append(x509Plans, p)
		} else {
			otherPlans = append(otherPlans, p)
		}
	}
	sort.Slice(x509Plans, func(i, j int) bool { return x509Plans[i].Path < x509Plans[j].Path })
	sort.Slice(otherPlans, func(i, j int) bool { return otherPlans[i].Path < otherPlans[j].Path })

	return append(x509Plans, otherPlans...)
}

// validate checks a single record's fields against the data model's
// bounds, downgrading it to an error variant on the first violation
// found. An already-errored plan passes through unchanged.
func validate(p Plan) Plan {
	if p.Kind == KindError {
		return p
	}
	switch p.Kind {
	case KindX509:
		if p.ValidFor != "" && !validForPattern.MatchString(p.ValidFor) {
			return NewErrorPlan(p.Path, "valid_for must match [1-9][0-9]*[ymdh], got "+p.ValidFor)
		}
	case KindRSA, KindSSH:
		if p.Size < minKeySize || p.Size > maxKeySize {
			return NewErrorPlan(p.Path, fmt.Sprintf("size must be between %d and %d bits, got %d", minKeySize, maxKeySize, p.Size))
		}
	}
	return p
}

func walkCertificates(tree map[string]interface{}, prefix string, plans map[string]Plan) {
	for key, val := range tree {
		path := joinPath(prefix, key)
		if strings.Contains(key, ":") {
			plans[path] = NewErrorPlan(path, "certificate paths may not contain ':'")
			continue
		}
		sub, isMap := val.(map[string]interface{})
		if !isMap {
			plans[path] = NewErrorPlan(path, "certificate entry must be a mapping")
			continue
		}
		if looksLikeX509Leaf(sub) {
			plans[path] = buildX509Plan(path, sub)
			continue
		}
		walkCertificates(sub, path, plans)
	}
}

func looksLikeX509Leaf(m map[string]interface{}) bool {
	for _, key := range []string{"is_ca", "names", "signed_by", "valid_for", "usage", "self_signed"} {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return len(m) == 0
}

func buildX509Plan(path string, fields map[string]interface{}) Plan {
	p := Plan{Kind: KindX509, Path: path, BasePath: parentOf(path)}

	if v, ok := fields["is_ca"].(bool); ok {
		p.IsCA = v
	}
	if IsCAPath(path) {
		p.IsCA = true
	}
	if v, ok := fields["signed_by"].(string); ok {
		p.SignedBy = v
	}
	if v, ok := fields["signed_by_abs_path"].(bool); ok {
		p.SignedByAbsPath = v
	}
	if names, ok := fields["names"].([]interface{}); ok {
		for _, n := range names {
			if s, ok := n.(string); ok && s != "" {
				p.Names = append(p.Names, s)
			}
		}
	}
	if usage, ok := fields["usage"].([]interface{}); ok {
		for _, u := range usage {
			if s, ok := u.(string); ok {
				p.Usage = append(p.Usage, s)
			}
		}
	}
	if v, ok := fields["valid_for"].(string); ok {
		p.ValidFor = v
	}
	return p
}

func walkCredentials(tree map[string]interface{}, prefix string, plans map[string]Plan) {
	for key, val := range tree {
		switch v := val.(type) {
		case string:
			path := prefix
			fullKey := key
			if idx := strings.Index(key, ":"); idx >= 0 {
				fullKey = key
			}
			plan := parseCredentialSpec(joinPath(path, strings.SplitN(fullKey, ":", 2)[0]), fullKey, v)
			plans[plan.Path] = plan
		case map[string]interface{}:
			walkCredentials(v, joinPath(prefix, key), plans)
		default:
			path := joinPath(prefix, key)
			plans[path] = NewErrorPlan(path, "credential entry must be a string spec or nested mapping")
		}
	}
}

// parseCredentialSpec handles the "path" or "path:key" (random only)
// form and dispatches to the kind-specific regex.
func parseCredentialSpec(basePath, rawKey, spec string) Plan {
	path := basePath
	key := ""
	if idx := strings.Index(rawKey, ":"); idx >= 0 {
		key = rawKey[idx+1:]
	}

	spec = strings.TrimSpace(spec)

	if m := randomPattern.FindStringSubmatch(spec); m != nil {
		size, _ := strconv.Atoi(m[1])
		p := Plan{Kind: KindRandom, Path: path, Key: key, Size: size, Format: m[2], Destination: m[3], ValidChars: m[4], Fixed: m[5] != ""}
		if key == "" {
			return NewErrorPlan(path, "random credential must be specified per key in a hashmap")
		}
		return p
	}
	if strings.HasPrefix(spec, "random") {
		return NewErrorPlan(path, "random credential must be specified per key in a hashmap")
	}
	if m := sshPattern.FindStringSubmatch(spec); m != nil {
		if key != "" {
			return NewErrorPlan(path, "ssh credential path may not contain ':' — only random supports path:key")
		}
		size, _ := strconv.Atoi(m[1])
		return Plan{Kind: KindSSH, Path: path, Size: size, Fixed: m[2] != ""}
	}
	if m := rsaPattern.FindStringSubmatch(spec); m != nil {
		if key != "" {
			return NewErrorPlan(path, "rsa credential path may not contain ':' — only random supports path:key")
		}
		size, _ := strconv.Atoi(m[1])
		return Plan{Kind: KindRSA, Path: path, Size: size, Fixed: m[2] != ""}
	}
	if m := dhparamPattern.FindStringSubmatch(spec); m != nil {
		if key != "" {
			return NewErrorPlan(path, "dhparam credential path may not contain ':' — only random supports path:key")
		}
		size, _ := strconv.Atoi(m[1])
		return Plan{Kind: KindDHParams, Path: path, Size: size, Fixed: m[2] != ""}
	}

	return NewErrorPlan(path, "unrecognized credential specification: "+spec)
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return prefix + "/" + key
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// asError is a tiny helper so ParseFilter can return a Plan-shaped error
// without introducing a separate error type for filter compilation.
func (p Plan) asError() error {
	return filterError{p.ErrorMessage}
}

type filterError struct{ msg string }

func (e filterError) Error() string { return e.msg }
