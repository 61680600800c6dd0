package types

import (
	"fmt"
	"regexp"
)

// validExtraKeyRe constrains Context.Extra keys to safe identifiers:
// adapters commonly namespace their own fields with a dot (e.g.
// "jira.sprint"), so dots are allowed alongside alphanumerics and
// underscore.
var validExtraKeyRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// validateExtraKey rejects an Extra key that could not round-trip safely
// through the on-disk header or a future structured query over it.
func validateExtraKey(key string) error {
	if !validExtraKeyRe.MatchString(key) {
		return fmt.Errorf("invalid extra context key %q: must match [a-zA-Z_][a-zA-Z0-9_.]*", key)
	}
	return nil
}
