// Command workflowctl is the administrative CLI surface spec.md §6 names:
// register-workflow, list-workflows, start, status, cancel, plus
// provide-input and watch (SPEC_FULL.md §3), each a thin HTTP client over
// the boundary layer's /v1 routes. Exit codes follow §6: 0 on success, 1 on
// a client-side error (bad args, server 4xx), 2 on a transport error (the
// server couldn't be reached at all).
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ledgerflow/workflowengine/pkg/boundary"
	"github.com/ledgerflow/workflowengine/pkg/registry"
)

const exitClientError = 1
const exitTransportError = 2

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: workflowctl [-addr http://host:port] <register-workflow|list-workflows|start|status|cancel|provide-input|watch> ...")
		return exitClientError
	}

	addr := "http://localhost:8080"
	cmd := args[0]
	rest := args[1:]
	if cmd == "-addr" {
		if len(args) < 3 {
			fmt.Fprintln(stderr, "missing value for -addr")
			return exitClientError
		}
		addr = args[1]
		cmd = args[2]
		rest = args[3:]
	}

	client := &http.Client{Timeout: 30 * time.Second}

	switch cmd {
	case "register-workflow":
		return cmdRegisterWorkflow(client, addr, rest, stdout, stderr)
	case "list-workflows":
		return cmdListWorkflows(client, addr, stdout, stderr)
	case "start":
		return cmdStart(client, addr, rest, stdout, stderr)
	case "status":
		return cmdStatus(client, addr, rest, stdout, stderr)
	case "cancel":
		return cmdCancel(client, addr, rest, stdout, stderr)
	case "provide-input":
		return cmdProvideInput(client, addr, rest, stdout, stderr)
	case "watch":
		return cmdWatch(addr, rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		return exitClientError
	}
}

func cmdRegisterWorkflow(client *http.Client, addr string, args []string, stdout, stderr io.Writer) int {
	dryRun := false
	if len(args) > 0 && args[0] == "--dry-run" {
		dryRun = true
		args = args[1:]
	}
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: register-workflow [--dry-run] <file.json>")
		return exitClientError
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitClientError
	}

	path := "/v1/workflows"
	if dryRun {
		path = "/v1/workflows/validate"
	}
	resp, err := client.Post(addr+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return printErrorEnvelope(resp, stderr)
	}

	if dryRun {
		var report registry.ValidationReport
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			fmt.Fprintln(stderr, err)
			return exitTransportError
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		if report.Summary != nil && report.Summary.Failed > 0 {
			return exitClientError
		}
		return 0
	}

	var out boundary.RegisterWorkflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	fmt.Fprintf(stdout, "registered %s v%d\n", out.ID, out.Version)
	return 0
}

func cmdListWorkflows(client *http.Client, addr string, stdout, stderr io.Writer) int {
	resp, err := client.Get(addr + "/v1/workflows")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return printErrorEnvelope(resp, stderr)
	}

	var out boundary.ListWorkflowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	for _, w := range out.Items {
		fmt.Fprintf(stdout, "%s\tv%d\t%s\t%s\n", w.ID, w.Version, w.Category, w.Name)
	}
	return 0
}

func cmdStart(client *http.Client, addr string, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: start <workflow_id> <context.json>")
		return exitClientError
	}
	workflowID := args[0]
	raw, err := os.ReadFile(args[1])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitClientError
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		fmt.Fprintln(stderr, "invalid context json:", err)
		return exitClientError
	}

	reqBody, _ := json.Marshal(boundary.StartExecutionRequest{
		WorkflowID:     workflowID,
		PrincipalID:    "workflowctl",
		SessionID:      "cli",
		InitialContext: boundary.InitialContextDTO{Data: data},
	})

	resp, err := client.Post(addr+"/v1/executions", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return printErrorEnvelope(resp, stderr)
	}

	var out boundary.StartExecutionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	fmt.Fprintln(stdout, out.ExecutionID)
	return 0
}

func cmdStatus(client *http.Client, addr string, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: status <execution_id>")
		return exitClientError
	}
	resp, err := client.Get(addr + "/v1/executions/" + args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return printErrorEnvelope(resp, stderr)
	}

	var out boundary.ExecutionStatusDTO
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	return 0
}

func cmdCancel(client *http.Client, addr string, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: cancel <execution_id>")
		return exitClientError
	}
	resp, err := client.Post(addr+"/v1/executions/"+args[0]+"/cancel", "application/json", nil)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return printErrorEnvelope(resp, stderr)
	}
	fmt.Fprintln(stdout, "cancelled")
	return 0
}

func cmdProvideInput(client *http.Client, addr string, args []string, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintln(stderr, "usage: provide-input <execution_id> <step_id> <input.json>")
		return exitClientError
	}
	raw, err := os.ReadFile(args[2])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitClientError
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		fmt.Fprintln(stderr, "invalid input json:", err)
		return exitClientError
	}

	reqBody, _ := json.Marshal(boundary.ProvideStepInputRequest{
		StepID: args[1],
		Input:  boundary.InitialContextDTO{Data: data},
	})
	resp, err := client.Post(addr+"/v1/executions/"+args[0]+"/input", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return printErrorEnvelope(resp, stderr)
	}
	fmt.Fprintln(stdout, "ack")
	return 0
}

// cmdWatch consumes StreamExecution's Server-Sent Events and prints one line
// per event until the stream closes (the boundary layer closes it after a
// terminal STATUS_CHANGED, per spec.md §6).
func cmdWatch(addr string, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: watch <execution_id>")
		return exitClientError
	}
	// The stream stays open until the execution is terminal, so watch uses
	// its own client with no overall timeout.
	streamClient := &http.Client{}
	resp, err := streamClient.Get(addr + "/v1/executions/" + args[0] + "/stream")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitTransportError
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return printErrorEnvelope(resp, stderr)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event boundary.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}
		fmt.Fprintf(stdout, "[v%d] %s %v\n", event.Version, event.Kind, event.Payload)
	}
	return 0
}

func printErrorEnvelope(resp *http.Response, stderr io.Writer) int {
	var env boundary.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		fmt.Fprintf(stderr, "server returned %d\n", resp.StatusCode)
		return exitTransportError
	}
	fmt.Fprintf(stderr, "%s: %s\n", env.Code, env.Message)
	return exitClientError
}
