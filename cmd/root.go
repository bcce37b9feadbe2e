// Package cmd provides the command-line interface for pagewright.
//
// Configuration System:
//
//	Settings are read from several sources with clear precedence:
//	1. Command-line flags (--config, --max-workers, etc.) - highest priority
//	2. Individual environment variables (PAGEWRIGHT_OUTPUT_DIR, etc.)
//	3. Variables from a .env file in the working directory
//	4. The configuration file (.pagewright.yml) - lowest priority
//
// Environment Variables:
//
//	PAGEWRIGHT_CONFIG_FILE: Path to a custom configuration file
//	PAGEWRIGHT_BASE: Site base path
//	PAGEWRIGHT_OUTPUT_TARGET: fs or s3
//	And every other key following the PAGEWRIGHT_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/pagewright/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pagewright",
	Short: "Render declared routes into static pages and client modules",
	Long: `pagewright renders the routes of a site into static HTML pages, a
deduplicated graph of client JS and CSS modules, and the page state modules
that hydrate them.

Quick Start:
  pagewright build                Render every route into the output directory
  pagewright watch                Rebuild whenever a source file changes
  pagewright preview              Serve the output directory
  pagewright version              Show version information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .pagewright.yml, can also use PAGEWRIGHT_CONFIG_FILE env var)")
	flags.String("root", ".", "project root; relative paths resolve against it")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("root", flags.Lookup("root"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
}

// initConfig selects the configuration file and enables environment
// overrides. The --config flag wins over PAGEWRIGHT_CONFIG_FILE, which wins
// over .pagewright.yml in the working directory. A missing file is not an
// error.
func initConfig() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PAGEWRIGHT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pagewright")
	}

	viper.SetEnvPrefix("PAGEWRIGHT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintln(os.Stderr, "Warning: reading config:", err)
		}
	}
}
