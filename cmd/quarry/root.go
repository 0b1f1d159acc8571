// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quarrydata/quarry/internal/log"
	"github.com/quarrydata/quarry/internal/version"
)

var (
	cfgFile    string
	config     *Config
	restoreLog func()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "quarry - ask your database questions in plain language",
	Long: `quarry answers questions about your data. It writes read-only SQL with an LLM,
runs it against the configured connections and learns from the queries that fail.`,
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if restoreLog != nil {
			restoreLog()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $QUARRY_DATA_DIR/quarry.yaml)")

	// LLM flags
	rootCmd.PersistentFlags().String("llm-provider", "", "LLM provider (anthropic, bedrock, openai, ollama)")
	rootCmd.PersistentFlags().String("model", "", "model name (provider default when empty)")
	rootCmd.PersistentFlags().String("api-key", "", "LLM API key (or use keyring/env)")
	rootCmd.PersistentFlags().String("base-url", "", "LLM endpoint override")

	// Database flags
	rootCmd.PersistentFlags().String("connection", "", "default connection for this run")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")

	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("llm.api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag("llm.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("default_connection", rootCmd.PersistentFlags().Lookup("connection"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set, then installs
// the logger.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	restoreLog, err = log.Setup(log.Config{
		Level:  config.Logging.Level,
		Format: config.Logging.Format,
		File:   config.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %v\n", err)
		os.Exit(1)
	}
}
