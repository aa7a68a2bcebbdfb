// Package cmd implements the agentkitd CLI: a thin cobra wrapper around the
// orchestration core, grounded on the teacher's cmd/quorum/cmd package
// layout (one file per subcommand, persistent config/log flags bound
// through viper in root.go, shared dependency construction in common.go).
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	serverAddr string

	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "agentkitd",
	Short: "Agent orchestration core: task router, worktrees, and the remote agent protocol",
	Long: `agentkitd runs the agent orchestration core: it accepts tasks, dispatches
them to an embedded agent loop or an external coding CLI inside an isolated
git worktree, and exposes the result over a JSON-RPC remote agent protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func GetVersion() string { return appVersion }

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .agentkit/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format (auto, pretty, text, json)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "override server.addr for this invocation")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(worktreeCmd)
	rootCmd.AddCommand(doctorCmd)
}

func initConfig() error {
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	viper.SetEnvPrefix("AGENTKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return nil
}
