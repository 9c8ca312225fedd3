// Package cmd provides CLI commands for the printlapse binary.
package cmd

import "github.com/urfave/cli/v2"

// ConfigFlag points all commands at the service configuration file.
var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to configuration file",
	Value:   "printlapse.yaml",
	EnvVars: []string{"PRINTLAPSE_CONFIG"},
}

// FormatFlag selects output format for read-only commands.
var FormatFlag = &cli.StringFlag{
	Name:    "format",
	Aliases: []string{"f"},
	Usage:   "Output format: json, table, yaml",
}
