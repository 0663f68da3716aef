package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/api"
	"github.com/jackzampolin/reportsum/internal/config"
	"github.com/jackzampolin/reportsum/internal/home"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to the home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		path := h.ConfigPath()
		if cfgFile != "" {
			path = cfgFile
		}
		if h.ConfigExists() && path == h.ConfigPath() && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		cfgMgr, err := config.NewManager(cfgFile, h.Path())
		if err != nil {
			return err
		}
		settings := make(map[string]any)
		for _, e := range config.DefaultEntries() {
			settings[e.Key] = cfgMgr.Value(e.Key)
		}
		if key, ok := settings["model.api_key"].(string); ok && key != "" && !strings.HasPrefix(key, "${") {
			settings["model.api_key"] = "********"
		}
		return api.Output(map[string]any{
			"config_file": cfgMgr.ConfigFileUsed(),
			"settings":    settings,
		})
	},
}

var configDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "List every config key with its default",
	RunE: func(cmd *cobra.Command, args []string) error {
		return api.Output(config.DefaultEntries())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configDefaultsCmd)
	rootCmd.AddCommand(configCmd)
}
