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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/recheck/internal/version"
	"github.com/teradata-labs/recheck/pkg/types"
)

// Exit codes: 0 completed (rows may still have failed), 1 invalid
// configuration, 2 unrecoverable runtime error, 130 cancelled.
const (
	exitOK        = 0
	exitConfig    = 1
	exitRuntime   = 2
	exitCancelled = 130
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "recheck",
	Short: "Validate tabular records against their web pages",
	Long: `recheck walks a CSV or XLSX file, opens each row's page, extracts the
declared fields from the DOM (with OCR fallback), and decides field by
field whether the page agrees with the record. Every row leaves an
evidence bundle with screenshots, the DOM snapshot, and the decision
log.`,
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")

	viper.SetEnvPrefix("RECHECK")
	viper.AutomaticEnv()
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))   //nolint:errcheck
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format")) //nolint:errcheck

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the recheck version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var te *types.Error
	if errors.As(err, &te) {
		switch te.Kind {
		case types.ErrConfigInvalid:
			return exitConfig
		case types.ErrCancelled:
			return exitCancelled
		default:
			return exitRuntime
		}
	}
	return exitRuntime
}
