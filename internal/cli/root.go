package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
	quizRound  string
	codeRound  string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	if envPort == "" {
		envPort = "8080"
	}
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "liveclass-service",
		Short: "Real-time live lesson room engine powered by Gorilla WebSocket",
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&quizRound, "quiz-round", "", "override the quiz round duration (e.g. 45s)")
	cmd.PersistentFlags().StringVar(&codeRound, "code-round", "", "override the code challenge duration (e.g. 15m)")
	cmd.AddCommand(NewStartCmd(&configPath, &port, &quizRound, &codeRound))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewRollbackCmd(&configPath))
	return cmd
}
