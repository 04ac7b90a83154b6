package store

import (
	"fmt"
	"regexp"

	"github.com/bgunnarsson/tabled/internal/errors"
)

const maxIdentLen = 64

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// A type name of one or more words with an optional (n), (n,m) or (max).
	typeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*( [A-Za-z][A-Za-z0-9_]*)*(\(\s*(\d+|max|MAX)\s*(,\s*\d+\s*)?\))?$`)
)

// ValidIdentifier reports whether s is a plain SQL identifier.
func ValidIdentifier(s string) bool {
	return len(s) <= maxIdentLen && identRe.MatchString(s)
}

// ValidType reports whether s looks like a column type such as TEXT,
// INTEGER, VARCHAR(40) or DOUBLE PRECISION.
func ValidType(s string) bool {
	return len(s) <= maxIdentLen && typeRe.MatchString(s)
}

// checkIdent rejects empty names always and non-plain names in strict mode.
func (h *Handle) checkIdent(op, what, name string) error {
	if name == "" {
		return errors.NewInvalid(op, what+" name is required")
	}
	if h.cfg.StrictIdentifiers && !ValidIdentifier(name) {
		return errors.NewInvalid(op, fmt.Sprintf("invalid %s name %q", what, name))
	}
	return nil
}

func (h *Handle) checkType(op, typ string) error {
	if h.cfg.StrictIdentifiers && !ValidType(typ) {
		return errors.NewInvalid(op, fmt.Sprintf("invalid column type %q", typ))
	}
	return nil
}
