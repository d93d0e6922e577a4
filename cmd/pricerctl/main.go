// Command pricerctl is a CLI client for the pricer-service REST API, the
// way memoryctl is a CLI client for the teacher's memory-service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag    string
	apiKeyFlag string
	rootCmd    = &cobra.Command{
		Use:   "pricerctl",
		Short: "CLI client for the pricer-service REST API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "pricer-service base URL")
	rootCmd.PersistentFlags().StringVarP(&apiKeyFlag, "key", "k", os.Getenv("PRICERCTL_API_KEY"), "API key (Bearer token)")

	jobCmd := &cobra.Command{Use: "job", Short: "Job lifecycle operations"}
	jobCmd.AddCommand(
		newJobCreateCmd(),
		newJobGetCmd(),
		newJobListItemsCmd(),
		newJobKickoffCmd(),
		newJobTransitionCmd(),
		newJobReprocessCmd(),
		newJobExportCmd(),
	)
	rootCmd.AddCommand(jobCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
