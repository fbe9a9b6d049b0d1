// Package main provides a CLI for interacting with the agenthive server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL  string
	username   string
	password   string
	token      string
	adminKey   string
	configPath string
)

// Config represents the CLI configuration
type Config struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Token     string `json:"token"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "agenthive-cli",
		Short: "AgentHive CLI",
		Long:  "Command-line interface for interacting with the AgentHive server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if serverURL == "" || (username == "" && token == "") {
				loadCLIConfig()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Password")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "API token")
	rootCmd.PersistentFlags().StringVar(&adminKey, "admin-key", "", "Admin API key for privileged operations")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	rootCmd.AddCommand(loginCmd)

	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account management",
	}
	accountCmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Create a new account",
			Run:   createAccount,
		},
		&cobra.Command{
			Use:   "info",
			Short: "Get account information",
			Run:   getAccountInfo,
		},
		&cobra.Command{
			Use:   "limits",
			Short: "Show plan usage and limits",
			Run:   showLimits,
		},
	)

	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Workflow management",
	}
	workflowCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List workflows",
			Run:   listWorkflows,
		},
		&cobra.Command{
			Use:   "create [file]",
			Short: "Create a workflow from a YAML or JSON definition",
			Args:  cobra.ExactArgs(1),
			Run:   createWorkflow,
		},
		&cobra.Command{
			Use:   "get [id]",
			Short: "Get a workflow with its recent executions",
			Args:  cobra.ExactArgs(1),
			Run:   getWorkflow,
		},
		&cobra.Command{
			Use:   "status [id] [draft|active|paused]",
			Short: "Change a workflow's status",
			Args:  cobra.ExactArgs(2),
			Run:   setWorkflowStatus,
		},
		&cobra.Command{
			Use:   "delete [id]",
			Short: "Delete a workflow",
			Args:  cobra.ExactArgs(1),
			Run:   deleteWorkflow,
		},
	)

	executionCmd := &cobra.Command{
		Use:   "execution",
		Short: "Execution management",
	}
	runCmd := &cobra.Command{
		Use:   "run [workflow-id]",
		Short: "Execute a workflow",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkflow,
	}
	runCmd.Flags().Bool("async", false, "Enqueue and return immediately")
	runCmd.Flags().Bool("simulate", false, "Return the dry-run plan instead of executing")
	runCmd.Flags().String("input", "", "JSON input payload")
	executionCmd.AddCommand(
		runCmd,
		&cobra.Command{
			Use:   "status [execution-id]",
			Short: "Poll an execution",
			Args:  cobra.ExactArgs(1),
			Run:   executionStatus,
		},
		&cobra.Command{
			Use:   "active",
			Short: "List in-flight executions",
			Run:   activeExecutions,
		},
		&cobra.Command{
			Use:   "cancel [execution-id]",
			Short: "Cancel a running execution",
			Args:  cobra.ExactArgs(1),
			Run:   cancelExecution,
		},
		&cobra.Command{
			Use:   "logs [execution-id]",
			Short: "Show an execution's logs",
			Args:  cobra.ExactArgs(1),
			Run:   executionLogs,
		},
	)

	creditCmd := &cobra.Command{
		Use:   "credits",
		Short: "Credit ledger operations",
	}
	addCreditsCmd := &cobra.Command{
		Use:   "add [account-id] [amount]",
		Short: "Grant credits to an account (admin)",
		Args:  cobra.ExactArgs(2),
		Run:   addCredits,
	}
	addCreditsCmd.Flags().String("source", "admin_grant", "Audit source label")
	creditCmd.AddCommand(addCreditsCmd)

	rootCmd.AddCommand(accountCmd, workflowCmd, executionCmd, creditCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadCLIConfig loads the CLI configuration from disk
func loadCLIConfig() {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".agenthive", "cli-config.json")
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Printf("Warning: Failed to read config file: %v\n", err)
		return
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		fmt.Printf("Warning: Failed to parse config file: %v\n", err)
		return
	}

	if serverURL == "" {
		serverURL = config.ServerURL
	}
	if username == "" && token == "" {
		username = config.Username
		token = config.Token
	}
}

// saveCLIConfig saves the CLI configuration to disk
func saveCLIConfig(config Config) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir := filepath.Join(home, ".agenthive")
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "cli-config.json")
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// doRequest sends an authenticated request and returns the response
// body, exiting on transport errors or unexpected statuses
func doRequest(method, path string, body interface{}, wantStatus int) []byte {
	if serverURL == "" {
		fmt.Println("Error: Server URL is required")
		os.Exit(1)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")

	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	} else if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if username != "" && password != "" {
		req.SetBasicAuth(username, password)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if resp.StatusCode != wantStatus {
		fmt.Printf("Error: %s\n", respBody)
		os.Exit(1)
	}

	return respBody
}

// printJSON pretty-prints a JSON response body
func printJSON(body []byte) {
	if len(body) == 0 {
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}
