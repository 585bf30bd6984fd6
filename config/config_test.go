package config

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/grit-vcs/grit/plumbing"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestUnmarshal() {
	input := []byte(`[core]
	bare = true
	worktree = foo
[init]
	defaultBranch = main
[branch "feature"]
	remote = origin
	merge = refs/heads/feature
	rebase = interactive
`)

	cfg := NewConfig()
	s.Require().NoError(cfg.Unmarshal(input))

	s.True(cfg.Core.IsBare)
	s.Equal("foo", cfg.Core.Worktree)
	s.Equal("main", cfg.Init.DefaultBranch)

	branch := cfg.Branches["feature"]
	s.Require().NotNil(branch)
	s.Equal("feature", branch.Name)
	s.Equal("origin", branch.Remote)
	s.Equal(plumbing.ReferenceName("refs/heads/feature"), branch.Merge)
	s.Equal("interactive", branch.Rebase)
}

func (s *ConfigSuite) TestMarshalRoundTrip() {
	cfg := NewConfig()
	cfg.Core.Worktree = "bar"
	cfg.Branches["feature"] = &Branch{
		Name:   "feature",
		Remote: "origin",
		Merge:  plumbing.NewBranchReferenceName("feature"),
	}

	b, err := cfg.Marshal()
	s.Require().NoError(err)

	out := NewConfig()
	s.Require().NoError(out.Unmarshal(b))

	s.False(out.Core.IsBare)
	s.Equal("bar", out.Core.Worktree)

	branch := out.Branches["feature"]
	s.Require().NotNil(branch)
	s.Equal("origin", branch.Remote)
	s.Equal(plumbing.ReferenceName("refs/heads/feature"), branch.Merge)
}

func (s *ConfigSuite) TestMarshalKeepsUnknownSections() {
	input := []byte(`[custom]
	key = value
`)

	cfg := NewConfig()
	s.Require().NoError(cfg.Unmarshal(input))

	b, err := cfg.Marshal()
	s.Require().NoError(err)
	s.Contains(string(b), "[custom]")
	s.Contains(string(b), "key = value")
}

func (s *ConfigSuite) TestValidateBranchNameMismatch() {
	cfg := NewConfig()
	cfg.Branches["one"] = &Branch{Name: "another"}
	s.ErrorIs(cfg.Validate(), errBranchNameMismatch)
}

func (s *ConfigSuite) TestBranchValidate() {
	for _, tc := range []struct {
		branch Branch
		err    error
	}{
		{Branch{}, errBranchEmptyName},
		{Branch{Name: "feature", Merge: "invalid"}, errBranchInvalidMerge},
		{Branch{Name: "feature", Rebase: "maybe"}, errBranchInvalidRebase},
		{Branch{Name: "bad..name"}, plumbing.ErrInvalidReferenceName},
		{Branch{Name: "feature", Merge: "refs/heads/feature", Rebase: "true"}, nil},
	} {
		err := tc.branch.Validate()
		if tc.err == nil {
			s.NoError(err)
		} else {
			s.ErrorIs(err, tc.err)
		}
	}
}
