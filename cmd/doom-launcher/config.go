package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/JPEWdev/oe-doom-launcher/internal/config"
)

type commandConfig struct {
	FS *flag.FlagSet

	ConfigPath string
	// Explicit is true when the config path was chosen by the operator, in
	// which case an unreadable file refuses startup instead of falling back
	// to defaults.
	Explicit bool
}

func (c *commandConfig) Parse(args []string, env config.Env) error {
	c.FS = flag.NewFlagSet("doom-launcher", flag.ExitOnError)

	defaultPath := config.DefaultPath
	if env.ConfigPath != "" {
		defaultPath = env.ConfigPath
	}

	c.FS.StringVar(&c.ConfigPath, "config", defaultPath, "config file path")
	c.FS.Usage = func() {
		fmt.Fprintln(c.FS.Output()) // newline
		fmt.Fprintln(c.FS.Output(), "Usage: doom-launcher [OPTIONS]")
		fmt.Fprintln(c.FS.Output())
		fmt.Fprintln(c.FS.Output(), "Options:")
		c.FS.PrintDefaults()
	}

	if err := c.FS.Parse(args); err != nil {
		return err
	}

	if len(c.FS.Args()) > 0 {
		return fmt.Errorf("unexpected argument: %s", c.FS.Args()[0])
	}

	c.Explicit = c.ConfigPath != config.DefaultPath

	return nil
}

func abort(fs *flag.FlagSet, err error) {
	fmt.Fprintf(fs.Output(), "Error: %v\n", err)
	fs.Usage()
	os.Exit(2)
}
