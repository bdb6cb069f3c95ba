package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loopchat/backend/internal/app"
)

// Version is set at build time.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "loopchat-server",
	Short:   "LLM chat backend with caller-side frontend tools",
	Long:    "loopchat-server runs the chat backend: an HTTP API that streams model answers and brokers the frontend tool flows the model may request, such as OTP login.",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		if code := app.Run(); code != 0 {
			return fmt.Errorf("server exited with code %d", code)
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
