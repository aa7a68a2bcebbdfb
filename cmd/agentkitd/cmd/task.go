package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Submit tasks to a running agentkitd and inspect their state",
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit [prompt]",
	Short: "Submit a task over the remote agent protocol",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskSubmit,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Fetch a task's current record",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus,
}

func init() {
	taskCmd.AddCommand(taskSubmitCmd, taskStatusCmd)
}

func daemonAddr() string {
	if serverAddr != "" {
		return serverAddr
	}
	return "localhost:8090"
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      int             `json:"id"`
}

func runTaskSubmit(_ *cobra.Command, args []string) error {
	params, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"role":  "user",
			"parts": []map[string]any{{"kind": "text", "text": args[0]}},
		},
	})
	if err != nil {
		return err
	}
	body, err := json.Marshal(rpcEnvelope{JSONRPC: "2.0", Method: "message/send", Params: params, ID: 1})
	if err != nil {
		return err
	}

	resp, err := postJSON(fmt.Sprintf("http://%s/a2a/message", daemonAddr()), body)
	if err != nil {
		return err
	}
	fmt.Println(string(resp))
	return nil
}

func runTaskStatus(_ *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/a2a/task/%s", daemonAddr(), args[0]))
	if err != nil {
		return fmt.Errorf("fetching task: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s: %s", resp.Status, out)
	}
	fmt.Println(string(out))
	return nil
}

func postJSON(url string, body []byte) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("calling daemon: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
