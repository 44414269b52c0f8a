package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the CLI configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a setting in the config file",
	Long: `Writes a setting to the config file. Keys match the global flags with
underscores, for example api_url, session_store or rate_limit.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

// configKeys are the settings shown and accepted by the config commands
var configKeys = []string{
	"api_url", "ws_url", "session_store", "session_path", "log_level",
	"log_json", "ca_file", "insecure", "rate_limit", "otlp_endpoint",
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd)
}

func effectiveConfig() map[string]interface{} {
	settings := make(map[string]interface{}, len(configKeys))
	for _, key := range configKeys {
		settings[key] = viper.Get(key)
	}
	return settings
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings := effectiveConfig()
	write := writeYAML
	if IsJSONOutput() {
		write = writeJSON
	}
	if err := write(cmd.OutOrStdout(), settings); err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "# loaded from %s\n", used)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if !knownConfigKey(key) {
		keys := append([]string(nil), configKeys...)
		sort.Strings(keys)
		return fmt.Errorf("unknown setting %q (known: %v)", key, keys)
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		path = cfgFile
	}
	if path == "" {
		path = filepath.Join(configDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	// Only persist what the file already holds plus the new key
	file := viper.New()
	file.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := file.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	file.Set(key, value)
	if err := file.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", key, path)
	return nil
}

func knownConfigKey(key string) bool {
	for _, k := range configKeys {
		if k == key {
			return true
		}
	}
	return false
}
