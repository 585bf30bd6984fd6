package filesystem

import (
	"io"
	"os"

	"github.com/grit-vcs/grit/config"
	"github.com/grit-vcs/grit/storage/filesystem/dotgit"
	"github.com/grit-vcs/grit/utils/ioutil"
)

// ConfigStorage reads and writes the repository configuration file.
type ConfigStorage struct {
	dir *dotgit.DotGit
}

// Config returns the decoded repository configuration. A repository without
// a config file yields an empty configuration.
func (c *ConfigStorage) Config() (conf *config.Config, err error) {
	f, err := c.dir.Config()
	if err != nil {
		if os.IsNotExist(err) {
			return config.NewConfig(), nil
		}

		return nil, err
	}

	defer ioutil.CheckClose(f, &err)

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	conf = config.NewConfig()
	if err = conf.Unmarshal(b); err != nil {
		return nil, err
	}

	return conf, err
}

// SetConfig validates and writes the repository configuration.
func (c *ConfigStorage) SetConfig(conf *config.Config) (err error) {
	if err = conf.Validate(); err != nil {
		return err
	}

	f, err := c.dir.ConfigWriter()
	if err != nil {
		return err
	}

	defer ioutil.CheckClose(f, &err)

	b, err := conf.Marshal()
	if err != nil {
		return err
	}

	_, err = f.Write(b)
	return err
}
