package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"surgrag/config"
	surgerr "surgrag/pkg/errors"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	verbose bool
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "surgrag",
	Short: "Surgical report retrieval index and reference context builder",
	Long: `surgrag stores de-identified surgical reports, keeps a vector index of them
in sync with the report store, and assembles similar reports into a reference
block for report generation.

Example usage:
  surgrag import ./reports                       # Import .txt reports
  surgrag rebuild                                # Re-index every stored report
  surgrag query -q "laparoscopic appendectomy"   # Find similar reports
  surgrag context --procedure EGD --signal "..." # Build reference context`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return surgerr.Wrap(err, surgerr.CodeCLISetupFailure, "failed to get working directory")
			}
		}

		// A missing .env is fine; variables may come from the environment.
		if err := godotenv.Load(filepath.Join(rootDir, ".env")); err != nil && !os.IsNotExist(err) {
			return surgerr.Wrap(err, surgerr.CodeCLISetupFailure, "failed to load .env")
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return err
		}

		logger, err = newLogger(cfg.Logging.Level, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeCLISetupFailure, "invalid logging level", surgerr.Field("level", level))
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	l, err := zc.Build()
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeCLISetupFailure, "failed to initialize logger")
	}
	return l, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if code := surgerr.CodeOf(err); code != "" {
			fmt.Fprintf(os.Stderr, "error code: %s\n", code)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./surgrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
