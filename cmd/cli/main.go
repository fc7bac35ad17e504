package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "creditledger-cli",
		Short: "CreditLedger CLI tool",
		Long:  `A command line interface for interacting with the CreditLedger API.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the CreditLedger API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	facilityCmd := &cobra.Command{
		Use:   "facility",
		Short: "Credit facility operations",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List facility ids",
		Run: func(cmd *cobra.Command, args []string) {
			get("/api/v1/facilities")
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <facility-id>",
		Short: "Show a facility",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			get("/api/v1/facilities/" + args[0])
		},
	}

	balanceCmd := &cobra.Command{
		Use:   "balance <facility-id>",
		Short: "Show a facility's balance summary",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			get("/api/v1/facilities/" + args[0] + "/balance")
		},
	}

	approveCmd := &cobra.Command{
		Use:   "approve <facility-id>",
		Short: "Conclude the approval process as approved",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/facilities/"+args[0]+"/approval", map[string]any{"approved": true})
		},
	}

	denyCmd := &cobra.Command{
		Use:   "deny <facility-id>",
		Short: "Conclude the approval process as denied",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/facilities/"+args[0]+"/approval", map[string]any{"approved": false})
		},
	}

	activateCmd := &cobra.Command{
		Use:   "activate <facility-id>",
		Short: "Activate an approved, collateralized facility",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/facilities/"+args[0]+"/activate", nil)
		},
	}

	var collateralSats int64
	collateralCmd := &cobra.Command{
		Use:   "collateral <facility-id>",
		Short: "Set the facility's collateral balance",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/facilities/"+args[0]+"/collateral", map[string]any{"collateral": collateralSats})
		},
	}
	collateralCmd.Flags().Int64Var(&collateralSats, "sats", 0, "New collateral balance in satoshis")

	var disbursalCents int64
	disburseCmd := &cobra.Command{
		Use:   "disburse <facility-id>",
		Short: "Initiate a drawdown",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/facilities/"+args[0]+"/disbursals", map[string]any{"amount": disbursalCents})
		},
	}
	disburseCmd.Flags().Int64Var(&disbursalCents, "cents", 0, "Drawdown amount in USD cents")

	var repaymentCents int64
	repayCmd := &cobra.Command{
		Use:   "repay <facility-id>",
		Short: "Record a repayment",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/facilities/"+args[0]+"/repayments", map[string]any{"amount": repaymentCents})
		},
	}
	repayCmd.Flags().Int64Var(&repaymentCents, "cents", 0, "Payment amount in USD cents")

	accrueCmd := &cobra.Command{
		Use:   "accrue <facility-id>",
		Short: "Record the next due interest accrual period",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/facilities/"+args[0]+"/accruals/record", nil)
		},
	}

	completeCmd := &cobra.Command{
		Use:   "complete <facility-id>",
		Short: "Close a fully repaid facility",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/facilities/"+args[0]+"/complete", nil)
		},
	}

	facilityCmd.AddCommand(listCmd, getCmd, balanceCmd, approveCmd, denyCmd, activateCmd, collateralCmd, disburseCmd, repayCmd, accrueCmd, completeCmd)
	rootCmd.AddCommand(facilityCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func get(path string) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(baseURL + path)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	printResponse(resp)
}

func post(path string, body any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			fmt.Printf("Failed to encode request: %v\n", err)
			os.Exit(1)
		}
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(baseURL+path, "application/json", &buf)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	printResponse(resp)
}

func printResponse(resp *http.Response) {
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		fmt.Printf("Request FAILED (Status: %d)\nResponse: %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}
