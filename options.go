package grit

import (
	"errors"

	"github.com/grit-vcs/grit/plumbing"
)

// ErrMissingParameter is returned when an options value lacks a field the
// operation cannot work without.
var ErrMissingParameter = errors.New("missing required parameter")

const defaultRemoteName = "origin"

// CheckoutOptions describes how a checkout operation should be performed.
type CheckoutOptions struct {
	// Branch is the target to check out: a branch name, a tag name, a full
	// reference name or a 40-hex object id.
	Branch string
	// Remote is the remote consulted when Branch does not exist locally but
	// a remote-tracking branch for it does. Defaults to "origin".
	Remote string
}

// Validate validates the fields and sets the default values.
func (o *CheckoutOptions) Validate() error {
	if o.Branch == "" {
		return ErrMissingParameter
	}

	if o.Remote == "" {
		o.Remote = defaultRemoteName
	}

	return nil
}

// Hash returns the object id the Branch field carries, or the zero hash
// when it is a reference name.
func (o *CheckoutOptions) Hash() plumbing.Hash {
	if !plumbing.IsHash(o.Branch) {
		return plumbing.ZeroHash
	}

	return plumbing.NewHash(o.Branch)
}
