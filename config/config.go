// Package config contains the abstraction of the repository config file, in
// the classic git dotted key format.
package config

import (
	"bytes"
	"errors"
	"sort"
	"strconv"

	format "github.com/grit-vcs/grit/plumbing/format/config"
)

var errBranchNameMismatch = errors.New("branch config: name does not match map key")

// Config contains the repository configuration.
// https://www.kernel.org/pub/software/scm/git/docs/git-config.html#FILES
type Config struct {
	Core struct {
		// IsBare if true this repository is assumed to be bare and has no
		// working directory associated with it.
		IsBare bool
		// Worktree is the path to the root of the working tree.
		Worktree string
	}

	Init struct {
		// DefaultBranch is the branch name used when initializing a new
		// repository, "master" when unset.
		DefaultBranch string
	}

	// Branches list of branches, the key is the branch name and should
	// equal Branch.Name
	Branches map[string]*Branch

	// Raw contains the raw information of a config file. The main goal is
	// preserve the parsed information from the original format, to avoid
	// dropping unsupported fields.
	Raw *format.Config
}

// NewConfig returns a new empty Config.
func NewConfig() *Config {
	return &Config{
		Branches: make(map[string]*Branch),
		Raw:      format.New(),
	}
}

// Validate validates the fields and sets the default values.
func (c *Config) Validate() error {
	for name, b := range c.Branches {
		if b.Name != name {
			return errBranchNameMismatch
		}

		if err := b.Validate(); err != nil {
			return err
		}
	}

	return nil
}

const (
	coreSection   = "core"
	initSection   = "init"
	branchSection = "branch"

	bareKey          = "bare"
	worktreeKey      = "worktree"
	defaultBranchKey = "defaultBranch"
	remoteSection    = "remote"
	mergeKey         = "merge"
	rebaseKey        = "rebase"
)

// Unmarshal parses a git-config file and stores it.
func (c *Config) Unmarshal(b []byte) error {
	r := bytes.NewBuffer(b)
	d := format.NewDecoder(r)

	c.Raw = format.New()
	if err := d.Decode(c.Raw); err != nil {
		return err
	}

	c.unmarshalCore()
	c.unmarshalInit()
	return c.unmarshalBranches()
}

func (c *Config) unmarshalCore() {
	s := c.Raw.Section(coreSection)
	if s.Options.Get(bareKey) == "true" {
		c.Core.IsBare = true
	}

	c.Core.Worktree = s.Options.Get(worktreeKey)
}

func (c *Config) unmarshalInit() {
	s := c.Raw.Section(initSection)
	c.Init.DefaultBranch = s.Options.Get(defaultBranchKey)
}

func (c *Config) unmarshalBranches() error {
	bs := c.Raw.Section(branchSection)
	for _, sub := range bs.Subsections {
		b := &Branch{}

		if err := b.unmarshal(sub); err != nil {
			return err
		}

		c.Branches[b.Name] = b
	}
	return nil
}

// Marshal returns Config encoded as a git-config file.
func (c *Config) Marshal() ([]byte, error) {
	c.marshalCore()
	c.marshalInit()
	c.marshalBranches()

	buf := bytes.NewBuffer(nil)
	if err := format.NewEncoder(buf).Encode(c.Raw); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (c *Config) marshalCore() {
	s := c.Raw.Section(coreSection)
	s.SetOption(bareKey, strconv.FormatBool(c.Core.IsBare))

	if c.Core.Worktree != "" {
		s.SetOption(worktreeKey, c.Core.Worktree)
	}
}

func (c *Config) marshalInit() {
	if c.Init.DefaultBranch != "" {
		c.Raw.Section(initSection).SetOption(defaultBranchKey, c.Init.DefaultBranch)
	}
}

func (c *Config) marshalBranches() {
	names := make([]string, 0, len(c.Branches))
	for name := range c.Branches {
		names = append(names, name)
	}

	sort.Strings(names)

	newSubsections := format.Subsections{}
	added := make(map[string]bool)
	for _, name := range names {
		newSubsections = append(newSubsections, c.Branches[name].marshal())
		added[name] = true
	}

	s := c.Raw.Section(branchSection)
	for _, subsection := range s.Subsections {
		if !added[subsection.Name] {
			newSubsections = append(newSubsections, subsection)
		}
	}

	s.Subsections = newSubsections
}
