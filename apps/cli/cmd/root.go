package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/conserve/packages/core/config"
	"github.com/abdul-hamid-achik/conserve/packages/core/env"
	"github.com/abdul-hamid-achik/conserve/packages/core/logger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag   string
	envFileFlag  string
	noColorFlag  bool
	logLevelFlag string
	profileFlag  string
)

// Loaded by setup before every command.
var (
	cfg = config.DefaultConfig()
	log = zap.NewNop()
)

// skipConfig marks commands that must not fail on a broken config file.
const skipConfig = "skipConfig"

var rootCmd = &cobra.Command{
	Use:   "conserve",
	Short: "Serial and parallel solvers for 1-D conservation laws",
	Long: `conserve integrates one-dimensional scalar conservation laws
u_t + f(u)_x = 0 with finite-difference schemes, in a single goroutine or
split across a pool of workers, and checks that both give the same numbers.

Configuration is read from conserve.yaml (or --config) and can be
overridden with flags and CONSERVE_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		if !isSilent(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file (env: CONSERVE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "Path to .env file loaded before the config (default: .env, .env.local)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output (env: CONSERVE_NO_COLOR)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (env: CONSERVE_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Apply a named profile from the config file")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads .env files, the config file with its profile, and the logger.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if envFileFlag != "" {
		_, err = env.LoadAndExportDotEnv(envFileFlag)
	} else {
		_, err = env.LoadDefaultFiles(".")
	}
	if err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("loading env file: %w", err))
	}

	if cmd.Annotations[skipConfig] == "" {
		if err := loadConfig(); err != nil {
			return err
		}
	}

	noColor := getEnvBool("CONSERVE_NO_COLOR", cfg.GetNoColor())
	if cmd.Flags().Changed("no-color") {
		noColor = noColorFlag
	}
	noColorFlag = noColor
	if noColor {
		color.NoColor = true
	}

	level := getEnvString("CONSERVE_LOG_LEVEL", cfg.Log.Level)
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	l, err := logger.New(level)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	log = l
	log.Debug("configuration loaded",
		zap.String("command", cmd.Name()),
		zap.String("config", cfg.Path),
		zap.String("profile", profileFlag))

	return nil
}

// loadConfig loads the config file named by --config or CONSERVE_CONFIG, or
// the first one found in the working directory, and applies --profile.
func loadConfig() error {
	path := getEnvString("CONSERVE_CONFIG", "")
	if configFlag != "" {
		path = configFlag
	}

	c, err := config.LoadConfig(path)
	if err != nil {
		if !errors.Is(err, config.ErrInvalidConfig) {
			err = fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		return err
	}
	if err := c.ApplyProfile(profileFlag); err != nil {
		return err
	}

	cfg = c
	return nil
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", errUsage, key, val)
	}
	return i, nil
}
