package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/file_systems/sfs"
	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli/v2"
)

const envVarPrefix = "SIMFS"

// Config holds the settings shared by every command. Values come from the
// environment first and are overridden by command-line flags.
type Config struct {
	Image        string `envconfig:"SIMFS_IMAGE"         default:"disk.img"`
	Geometry     string `envconfig:"SIMFS_GEOMETRY"      default:"default"`
	GeometryFile string `envconfig:"SIMFS_GEOMETRY_FILE"`
	LogLevel     string `envconfig:"SIMFS_LOG_LEVEL"     default:"warn"`
}

func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	return &c, nil
}

// applyFlags overrides settings with any global flags given on the command line.
func (c *Config) applyFlags(ctx *cli.Context) {
	if ctx.IsSet("image") {
		c.Image = ctx.String("image")
	}
	if ctx.IsSet("geometry") {
		c.Geometry = ctx.String("geometry")
	}
	if ctx.IsSet("geometry-file") {
		c.GeometryFile = ctx.String("geometry-file")
	}
	if ctx.IsSet("log-level") {
		c.LogLevel = ctx.String("log-level")
	}
}

// LoadGeometry returns the geometry selected by the configuration. A geometry
// file takes precedence over a predefined geometry.
func (c *Config) LoadGeometry() (disks.Geometry, error) {
	if c.GeometryFile != "" {
		return disks.LoadGeometryFile(c.GeometryFile)
	}
	return disks.GetPredefinedGeometry(c.Geometry)
}

func (c *Config) Logger() *slog.Logger {
	return simfs.NewTextLogger(os.Stderr, simfs.ParseLogLevel(c.LogLevel))
}

// Options gives the options for booting or formatting the configured image.
func (c *Config) Options() ([]sfs.Option, error) {
	geometry, err := c.LoadGeometry()
	if err != nil {
		return nil, err
	}
	return []sfs.Option{sfs.WithGeometry(geometry), sfs.WithLogger(c.Logger())}, nil
}

func configFromContext(ctx *cli.Context) (*Config, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	config.applyFlags(ctx)
	return config, nil
}

var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "image",
		Aliases: []string{"i"},
		Usage:   "path to the image file (default $SIMFS_IMAGE or disk.img)",
	},
	&cli.StringFlag{
		Name:    "geometry",
		Aliases: []string{"g"},
		Usage:   "name of a predefined geometry (default $SIMFS_GEOMETRY or default)",
	},
	&cli.StringFlag{
		Name:  "geometry-file",
		Usage: "YAML file describing a custom geometry",
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn, or error",
	},
}
