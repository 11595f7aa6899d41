// Command vctl is the read-only operator CLI: it talks to one node's
// internal/operator HTTP surface to report cluster health, shard
// assignments, and in-flight recovery activity. It never mutates cluster
// state — proposals go through the raft leader, not through this tool.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var addr string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vctl: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vctl",
	Short: "vctl inspects a vindex cluster through a node's operator HTTP surface",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:7101", "operator HTTP address of a node to query")
	rootCmd.AddCommand(healthCmd, shardsCmd, recoveryCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "print the cluster's traffic-light health status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchAndPrint("/health")
	},
}

var shardsCmd = &cobra.Command{
	Use:   "shards",
	Short: "list every shard and its copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchAndPrint("/shards")
	},
}

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "print in-flight peer recovery activity on the queried node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchAndPrint("/recovery")
	},
}

func fetchAndPrint(path string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s: %s", path, resp.Status, string(body))
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		// Not a JSON object (unlikely for this surface); print raw.
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
