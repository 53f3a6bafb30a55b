package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ericogr/icm42688p-monitor/pkg/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "icm42688p-monitor",
		Short: "sample an ICM-42688-P on every data-ready interrupt",
		Long: `icm42688p-monitor initializes the IMU over I2C, enables its data-ready
interrupt and prints one record per edge seen on the interrupt line.
The configuration is read in the following order:
1. path specified in --config flag
2. path defined in ICM42688P_CONFIG environment variable
3. config.yaml in $HOME/.config/icm42688p, /etc/icm42688p, current directory
The parameters in the configuration file are overwritten by environment
variables (ICM42688P_I2C_BUS, ...) and then by command line flags.
`,
		Example:       `  icm42688p-monitor --gpio-chip /dev/gpiochip0 --gpio-line 4`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCmdRunE,
	}
	config.AddFlags(root.PersistentFlags())

	cfgCmd := &cobra.Command{
		Use:        "config",
		SuggestFor: []string{"conf", "init"},
		Short:      "config creates a configuration template",
		Long: `config renders the effective configuration as YAML.
If --print flag is present, the configuration will be printed to stdout.
Otherwise it is written to --output, refusing to overwrite unless --yes is given.
`,
		Example: `  icm42688p-monitor config --print
  icm42688p-monitor config -o /etc/icm42688p/config.yaml -y`,
		RunE: configCmdRunE,
	}
	cfgCmd.Flags().Bool("print", false, "print config to stdout")
	cfgCmd.Flags().BoolP("yes", "y", false, "overwrite")
	cfgCmd.Flags().StringP("output", "o", "config.yaml", "output path")
	root.AddCommand(cfgCmd)

	root.AddCommand(&cobra.Command{
		Use:        "probe",
		SuggestFor: []string{"pro", "prob"},
		Short:      "probe initializes the IMU and prints its register state",
		RunE:       probeCmdRunE,
	})
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return cfg, err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return cfg, nil
}

func runCmdRunE(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg)
}

func probeCmdRunE(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return probe(cmd.OutOrStdout(), cfg)
}

func configCmdRunE(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwrite, _ := cmd.Flags().GetBool("yes")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	b, err := config.Template(cfg)
	if err != nil {
		return err
	}
	if printFlag {
		_, err = cmd.OutOrStdout().Write(b)
		return err
	}
	if _, err := os.Stat(outputPath); err == nil && !overwrite {
		return fmt.Errorf("%s exists, use --yes to overwrite", outputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(outputPath, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	log.WithField("path", outputPath).Info("configuration written")
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Fatal("icm42688p-monitor")
		}
	}
}
