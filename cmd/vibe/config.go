package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacobcy/VibeCopilot-sub000/internal/config"
)

var configCmd = &cobra.Command{
	Use:         "config",
	GroupID:     "setup",
	Short:       "Show and change vibe settings",
	Annotations: map[string]string{noDbAnnotation: "true"},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.AllSettings()
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, settings)
		}
		yamlOut, _ := cmd.Flags().GetBool("yaml")
		if yamlOut {
			return writeYAML(out, settings)
		}
		if used := config.ConfigFileUsed(); used != "" {
			fmt.Fprintf(out, "# %s\n", used)
		} else {
			fmt.Fprintln(out, "# no config file; defaults and environment only")
		}
		renderSettings(out, settings)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		k := config.LookupKey(key)
		if k == nil {
			return config.ValidateKey(key, "")
		}
		val := config.GetString(key)
		if k.Secret && val != "" {
			val = "********"
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"key": key, "value": val})
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting to the project config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ProjectConfigPath()
		if err := config.SetYamlConfig(path, args[0], args[1]); err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"key": args[0], "file": path})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Set %s in %s\n", green("✓"), args[0], path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:         "version",
	GroupID:     "setup",
	Short:       "Print the vibe version",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noDbAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"version": Version})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "vibe version %s\n", Version)
		return nil
	},
}

func init() {
	configShowCmd.Flags().Bool("yaml", false, "Output in YAML format")
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd, versionCmd)
}
