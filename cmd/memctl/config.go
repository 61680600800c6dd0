package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sl4m3/ledgermind/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit a storage root's config.yaml",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the yaml-only keys that gate how the engine starts up",
	Run:   runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a config.yaml key in place, preserving comments",
	Args:  cobra.ExactArgs(2),
	Run:   runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one resolved config value (file, env, or default)",
	Args:  cobra.ExactArgs(1),
	Run:   runConfigGet,
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configGetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	local := config.LoadLocalConfigWithEnv(storagePath)
	printResult(local)
}

// runConfigSet edits config.yaml directly. Keys that only take effect
// before the engine opens (storage_path, enable_git, trust_boundary) must
// be written this way; every other key can also be changed by re-running
// with the key set, since Init's viper instance watches the file for live
// reload.
func runConfigSet(cmd *cobra.Command, args []string) {
	key, value := args[0], args[1]
	path := filepath.Join(storagePath, "config.yaml")
	if err := config.SetYamlConfig(path, key, value); err != nil {
		fatal(err)
	}
	if config.IsYamlOnlyKey(key) {
		fmt.Printf("%s set; restart memctl to pick up the new %s\n", key, key)
		return
	}
	fmt.Printf("%s set\n", key)
}

func runConfigGet(cmd *cobra.Command, args []string) {
	if _, err := config.Init(storagePath); err != nil {
		fatal(err)
	}
	fmt.Println(config.GetYamlConfig(args[0]))
}
