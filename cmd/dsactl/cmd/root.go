package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultAPIURL = "http://localhost:8000/api/v1"

var (
	cfgFile      string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dsactl",
	Short: "CLI for the DSA judging platform",
	Long: `dsactl is a command line client for the DSA judging platform. It submits
solutions, follows judging progress and lets assistants inspect batch,
grading and validation jobs.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SilenceErrors = true

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dsactl/config.yaml)")
	flags.String("api-url", "", "API base URL including the version prefix (default "+defaultAPIURL+")")
	flags.String("ws-url", "", "websocket base URL (default derived from --api-url)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	flags.String("session-store", "file", "where the session is kept: file, sqlite or memory")
	flags.String("session-path", "", "session file or database path (default under $HOME/.dsactl)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("ca-file", "", "PEM file with CA certificates trusted for the API")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.Float64("rate-limit", 0, "maximum requests per second to the API (0 = unlimited)")
	flags.String("otlp-endpoint", "", "OTLP/HTTP endpoint for request traces (host:port)")

	for _, name := range []string{
		"api-url", "ws-url", "session-store", "session-path", "log-level",
		"log-json", "ca-file", "insecure", "rate-limit", "otlp-endpoint",
	} {
		viper.BindPFlag(configKey(name), flags.Lookup(name))
	}
}

// configKey maps a flag name to its config file key
func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// initConfig reads in .env, the config file and environment variables
func initConfig() {
	// A missing .env is the normal case
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DSA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("api_url", defaultAPIURL)
	viper.SetDefault("session_store", "file")
	viper.SetDefault("log_level", "warn")

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config %s: %v\n", cfgFile, err)
	}
}

// configDir returns $HOME/.dsactl
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dsactl"
	}
	return filepath.Join(home, ".dsactl")
}

// GetAPIURL returns the configured API URL with trailing slashes removed
func GetAPIURL() string {
	return strings.TrimRight(viper.GetString("api_url"), "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// IsYAMLOutput returns true if YAML output is requested
func IsYAMLOutput() bool {
	return outputFormat == "yaml"
}
