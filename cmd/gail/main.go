// Command gail runs Generative Adversarial Imitation Learning on
// Mountain Car.
//
// Flag defaults can be set with GAIL_* environment variables, which are
// also read from a .env file in the working directory:
//
//	GAIL_CONFIG       JSON experiment configuration
//	GAIL_EXPERT_PATH  expert trajectory file
//	GAIL_LOG_LEVEL    logrus level
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/evaluation"
	"github.com/samuelfneumann/goimitate/experiment"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// options are the flags shared by all commands
type options struct {
	configPath string
	expertPath string
	logLevel   string
}

func main() {
	// A missing .env file is not an error
	_ = godotenv.Load()

	var opts options
	rootCmd := &cobra.Command{
		Use:           "gail",
		Short:         "Imitate a Mountain Car expert with GAIL",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("GAIL_CONFIG"),
		"JSON experiment configuration; defaults are used if empty")
	flags.StringVar(&opts.expertPath, "expert", os.Getenv("GAIL_EXPERT_PATH"),
		"expert trajectory file, overriding the configuration")
	flags.StringVar(&opts.logLevel, "log-level", envOr("GAIL_LOG_LEVEL",
		"info"), "log level")

	rootCmd.AddCommand(
		trainCmd(&opts),
		expertCmd(&opts),
		evalCmd(&opts),
		configCmd(&opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}

// envOr returns the value of the environment variable key, or def if
// it is not set
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// config returns the experiment configuration selected by opts
func (o *options) config() (experiment.Config, error) {
	var c experiment.Config
	var err error
	if o.configPath != "" {
		c, err = experiment.LoadConfig(o.configPath)
	} else {
		c, err = experiment.DefaultConfig()
	}
	if err != nil {
		return experiment.Config{}, err
	}

	if o.expertPath != "" {
		c.ExpertPath = o.expertPath
	}
	return c, nil
}

func trainCmd(opts *options) *cobra.Command {
	var (
		timesteps     int
		checkpointDir string
		reportPath    string
		progress      bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a learner with GAIL and evaluate it before and after",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.config()
			if err != nil {
				return err
			}
			if timesteps > 0 {
				c.TotalTimesteps = timesteps
			}
			if checkpointDir != "" {
				c.CheckpointDir = checkpointDir
			}
			if reportPath != "" {
				c.ReportPath = reportPath
			}
			c.Progress = c.Progress || progress

			report, err := experiment.Run(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %v: %v rounds, %v timesteps\n",
				report.RunID, report.Rounds, report.Timesteps)
			printResult(cmd, "before training", report.Before)
			printResult(cmd, "after training", report.After)
			return nil
		},
	}
	cmd.Flags().IntVar(&timesteps, "timesteps", 0,
		"total training timesteps, overriding the configuration")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir",
		os.Getenv("GAIL_CHECKPOINT_DIR"), "directory of checkpoints")
	cmd.Flags().StringVar(&reportPath, "report", "",
		"file to save the run report to")
	cmd.Flags().BoolVar(&progress, "progress", false,
		"display a progress bar")
	return cmd
}

func expertCmd(opts *options) *cobra.Command {
	var (
		episodes int
		epsilon  float64
	)
	cmd := &cobra.Command{
		Use:   "expert",
		Short: "Record expert trajectories",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.config()
			if err != nil {
				return err
			}
			trajs, err := experiment.GenerateExpert(cmd.Context(), c,
				episodes, epsilon)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %v trajectories to %v\n",
				len(trajs), c.ExpertPath)
			return nil
		},
	}
	cmd.Flags().IntVar(&episodes, "episodes",
		experiment.DefaultExpertEpisodes, "minimum number of episodes")
	cmd.Flags().Float64Var(&epsilon, "epsilon", 0,
		"probability of a random expert action")
	return cmd
}

func evalCmd(opts *options) *cobra.Command {
	var policyPath string
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a learner checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.config()
			if err != nil {
				return err
			}
			result, err := experiment.EvaluatePolicy(cmd.Context(), c,
				policyPath)
			if err != nil {
				return err
			}
			printResult(cmd, policyPath, result)
			return nil
		},
	}
	cmd.Flags().StringVar(&policyPath, "policy", "", "learner checkpoint")
	if err := cmd.MarkFlagRequired("policy"); err != nil {
		panic(err)
	}
	return cmd
}

func configCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write the experiment configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.config()
			if err != nil {
				return err
			}
			if out != "" {
				return experiment.SaveConfig(out, c)
			}

			data, err := json.MarshalIndent(c, "", "\t")
			if err != nil {
				return errors.Wrap(err, "config")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "",
		"file to write to; standard output if empty")
	return cmd
}

func printResult(cmd *cobra.Command, name string, r evaluation.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "%v: reward %.2f ± %.2f over %v "+
		"episodes\n", name, r.Mean(), r.Std(), len(r.Rewards))
}
