package planvalidate

import (
	"encoding/pem"
	"fmt"
	"regexp"

	"github.com/genesis-deploy/genesis/internal/secretplan"
)

func validateDHParam(plan secretplan.Plan, stored map[string]string) Result {
	block, _ := pem.Decode([]byte(stored["dhparam-pem"]))
	if block == nil {
		return fail(plan, fmt.Sprintf("%s: dhparam value is not a PEM block", plan.Path))
	}
	if len(block.Bytes) == 0 {
		return fail(plan, fmt.Sprintf("%s: dhparam PEM block is empty", plan.Path))
	}
	return ok(plan, fmt.Sprintf("%s: dhparam block parses, %d bytes", plan.Path, len(block.Bytes)))
}

func validateRandom(plan secretplan.Plan, stored map[string]string) Result {
	value := stored[plan.Key]
	if plan.Size > 0 && len(value) != plan.Size {
		return warn(plan, fmt.Sprintf("%s:%s length %d does not match requested %d", plan.Path, plan.Key, len(value), plan.Size))
	}

	if plan.ValidChars != "" {
		re, err := regexp.Compile("^[" + plan.ValidChars + "]*$")
		if err != nil {
			return warn(plan, fmt.Sprintf("%s:%s: invalid allowed-chars class %q", plan.Path, plan.Key, plan.ValidChars))
		}
		if !re.MatchString(value) {
			return fail(plan, fmt.Sprintf("%s:%s contains characters outside %q", plan.Path, plan.Key, plan.ValidChars))
		}
	}

	if plan.Format != "" {
		destKey := destinationKey(plan)
		if _, ok := stored[destKey]; !ok {
			return fail(plan, fmt.Sprintf("%s: formatted value %q missing", plan.Path, destKey))
		}
		return ok(plan, fmt.Sprintf("%s:%s present, formatted value at %q present", plan.Path, plan.Key, destKey))
	}

	return ok(plan, fmt.Sprintf("%s:%s present, length %d", plan.Path, plan.Key, len(value)))
}
