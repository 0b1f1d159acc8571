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
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	quarryconfig "github.com/quarrydata/quarry/pkg/config"
)

//go:embed quarry.example.yaml
var exampleConfig []byte

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage quarry configuration",
	Long:  `Manage the configuration file and the secrets kept in the system keyring.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example configuration file",
	Long:  `Write an example quarry.yaml to the data directory ($QUARRY_DATA_DIR or ~/.quarry).`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the configuration merged from flags, environment, file and defaults. Secrets are masked.`,
	RunE:  runConfigShow,
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [key-name]",
	Short: "Save a secret to the system keyring",
	Long: `Save a secret to the system keyring.

The value is read from the terminal without echo, or from stdin when it is
not a terminal. Run 'quarry config list-keys' to see the key names.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigSetKey,
}

var configDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key [key-name]",
	Short: "Delete a secret from the system keyring",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigDeleteKey,
}

var configListKeysCmd = &cobra.Command{
	Use:   "list-keys",
	Short: "List secret key names",
	Run:   runConfigListKeys,
}

var forceInit bool

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd, configSetKeyCmd, configDeleteKeyCmd, configListKeysCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	dir := quarryconfig.GetDataDir()
	path := filepath.Join(dir, DefaultConfigFileName+".yaml")

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}
	if err := os.WriteFile(path, exampleConfig, 0600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings := maskSecrets(viper.AllSettings())
	out, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "# no config file found, showing defaults and environment")
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runConfigSetKey(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !isSecretKey(key) {
		return fmt.Errorf("unknown key %q (run 'quarry config list-keys')", key)
	}

	var value string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Enter value for %s: ", key)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("error reading value: %w", err)
		}
		value = string(raw)
	} else {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("error reading value: %w", err)
		}
		value = string(raw)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty value, nothing saved")
	}

	if err := SaveSecretToKeyring(key, value); err != nil {
		return fmt.Errorf("error saving to keyring: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to the system keyring\n", key)
	return nil
}

func runConfigDeleteKey(cmd *cobra.Command, args []string) error {
	if err := DeleteSecretFromKeyring(args[0]); err != nil {
		return fmt.Errorf("error deleting from keyring: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from the system keyring\n", args[0])
	return nil
}

func runConfigListKeys(cmd *cobra.Command, args []string) {
	mappings := GetSecretMappings()
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].KeyringKey < mappings[j].KeyringKey })
	for _, m := range mappings {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-26s %s\n", m.KeyringKey, m.Description)
	}
}

var secretSettings = map[string]bool{
	"api_key":           true,
	"access_key_id":     true,
	"secret_access_key": true,
	"session_token":     true,
	"encryption_key":    true,
	"dsn":               true,
}

// maskSecrets returns a copy of settings with secret values replaced.
func maskSecrets(settings map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = maskSecrets(val)
		case string:
			if secretSettings[k] && val != "" {
				out[k] = "********"
			} else {
				out[k] = val
			}
		default:
			out[k] = v
		}
	}
	return out
}
