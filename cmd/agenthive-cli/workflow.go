package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// createWorkflow creates a workflow from a YAML or JSON file. The file
// holds the same shape the API accepts: name, description, status, and
// a nodes list of {integration, action, config, input}.
func createWorkflow(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var definition map[string]interface{}
	if strings.HasSuffix(args[0], ".json") {
		err = json.Unmarshal(data, &definition)
	} else {
		err = yaml.Unmarshal(data, &definition)
	}
	if err != nil {
		fmt.Printf("Error: failed to parse %s: %v\n", args[0], err)
		os.Exit(1)
	}

	body := doRequest(http.MethodPost, "/api/v1/workflows", definition, http.StatusCreated)
	printJSON(body)
}

// listWorkflows lists all workflows
func listWorkflows(cmd *cobra.Command, args []string) {
	printJSON(doRequest(http.MethodGet, "/api/v1/workflows", nil, http.StatusOK))
}

// getWorkflow gets a workflow with its recent executions
func getWorkflow(cmd *cobra.Command, args []string) {
	printJSON(doRequest(http.MethodGet, "/api/v1/workflows/"+args[0], nil, http.StatusOK))
}

// setWorkflowStatus changes a workflow's status
func setWorkflowStatus(cmd *cobra.Command, args []string) {
	body := doRequest(http.MethodPatch, "/api/v1/workflows/"+args[0],
		map[string]string{"status": args[1]}, http.StatusOK)
	printJSON(body)
}

// deleteWorkflow deletes a workflow
func deleteWorkflow(cmd *cobra.Command, args []string) {
	doRequest(http.MethodDelete, "/api/v1/workflows/"+args[0], nil, http.StatusNoContent)
	fmt.Println("Workflow deleted")
}

// runWorkflow triggers a workflow execution
func runWorkflow(cmd *cobra.Command, args []string) {
	async, _ := cmd.Flags().GetBool("async")
	simulate, _ := cmd.Flags().GetBool("simulate")
	inputJSON, _ := cmd.Flags().GetString("input")

	var input map[string]interface{}
	if inputJSON != "" {
		if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
			fmt.Printf("Error: invalid input JSON: %v\n", err)
			os.Exit(1)
		}
	}

	request := map[string]interface{}{
		"workflowId": args[0],
		"input":      input,
		"simulate":   simulate,
		"async":      async,
	}

	wantStatus := http.StatusOK
	if async {
		wantStatus = http.StatusAccepted
	}

	printJSON(doRequest(http.MethodPost, "/api/v1/workflows/execute", request, wantStatus))
}

// executionStatus polls one execution
func executionStatus(cmd *cobra.Command, args []string) {
	printJSON(doRequest(http.MethodGet,
		"/api/v1/workflows/execute?executionId="+url.QueryEscape(args[0]), nil, http.StatusOK))
}

// activeExecutions lists in-flight executions
func activeExecutions(cmd *cobra.Command, args []string) {
	printJSON(doRequest(http.MethodGet, "/api/v1/workflows/execute", nil, http.StatusOK))
}

// cancelExecution requests cooperative cancellation
func cancelExecution(cmd *cobra.Command, args []string) {
	printJSON(doRequest(http.MethodDelete,
		"/api/v1/workflows/execute?executionId="+url.QueryEscape(args[0]), nil, http.StatusOK))
}

// executionLogs shows the persisted logs of an execution
func executionLogs(cmd *cobra.Command, args []string) {
	printJSON(doRequest(http.MethodGet, "/api/v1/executions/"+args[0]+"/logs", nil, http.StatusOK))
}

// addCredits grants credits to an account through the admin surface
func addCredits(cmd *cobra.Command, args []string) {
	if adminKey == "" {
		fmt.Println("Error: --admin-key is required")
		os.Exit(1)
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Error: invalid amount %q\n", args[1])
		os.Exit(1)
	}

	source, _ := cmd.Flags().GetString("source")

	body := doRequest(http.MethodPost, "/api/v1/billing/credits", map[string]interface{}{
		"account_id": args[0],
		"amount":     amount,
		"source":     source,
	}, http.StatusOK)
	printJSON(body)
}
