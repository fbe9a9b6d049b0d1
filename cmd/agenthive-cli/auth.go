package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store a session token",
	Run:   login,
}

// login authenticates and saves the session token to the CLI config
func login(cmd *cobra.Command, args []string) {
	if username == "" {
		fmt.Print("Username: ")
		fmt.Scanln(&username)
	}
	if password == "" {
		fmt.Print("Password: ")
		fmt.Scanln(&password)
	}

	body := doRequest(http.MethodPost, "/api/v1/login", map[string]string{
		"username": username,
		"password": password,
	}, http.StatusOK)

	var result struct {
		Token     string `json:"token"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	token = result.Token
	if err := saveCLIConfig(Config{
		ServerURL: serverURL,
		Username:  username,
		Token:     result.Token,
	}); err != nil {
		fmt.Printf("Warning: Failed to save config: %v\n", err)
	}

	fmt.Printf("Logged in as %s (account %s)\n", username, result.AccountID)
}

// createAccount creates a new account
func createAccount(cmd *cobra.Command, args []string) {
	if username == "" {
		fmt.Print("Username: ")
		fmt.Scanln(&username)
	}
	if password == "" {
		fmt.Print("Password: ")
		fmt.Scanln(&password)
	}

	doRequest(http.MethodPost, "/api/v1/accounts", map[string]string{
		"username": username,
		"password": password,
	}, http.StatusCreated)

	fmt.Println("Account created successfully")

	if err := saveCLIConfig(Config{ServerURL: serverURL, Username: username}); err != nil {
		fmt.Printf("Warning: Failed to save config: %v\n", err)
	}
}

// getAccountInfo gets information about the current account
func getAccountInfo(cmd *cobra.Command, args []string) {
	printJSON(doRequest(http.MethodGet, "/api/v1/accounts/me", nil, http.StatusOK))
}

// showLimits prints usage against plan limits
func showLimits(cmd *cobra.Command, args []string) {
	printJSON(doRequest(http.MethodGet, "/api/v1/billing/subscription/limits", nil, http.StatusOK))
}
