package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/steadystate/havoc/pkg/catalog"
)

// adminClient talks to a running engine's admin API.
type adminClient struct {
	base string
	http *http.Client
}

func newAdminClient(cmd *cobra.Command) *adminClient {
	base, _ := cmd.Flags().GetString("server")
	return &adminClient{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *adminClient) get(path string) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return errors.Errorf("unable to reach the engine at %s, %v", c.base, err)
	}
	return c.print(resp)
}

func (c *adminClient) post(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return errors.Errorf("unable to reach the engine at %s, %v", c.base, err)
	}
	return c.print(resp)
}

// print re-indents the response body and surfaces non-2xx statuses as
// errors so shell pipelines fail properly.
func (c *adminClient) print(resp *http.Response) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var indented bytes.Buffer
	if json.Indent(&indented, body, "", "  ") == nil {
		body = indented.Bytes()
	}
	fmt.Println(string(body))
	if resp.StatusCode >= 300 {
		return errors.Errorf("engine answered %s", resp.Status)
	}
	return nil
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog-file>",
		Short: "Validate an experiment catalog file without loading it into an engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.New()
			if err := cat.LoadFile(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s: %d definition(s) valid\n", args[0], len(cat.All()))
			return nil
		},
	}
}

func newDefinitionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "definitions",
		Short: "List the experiment definitions loaded in the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient(cmd).get("/api/v1/definitions")
		},
	}
}

func newRunsCommand() *cobra.Command {
	var definitionID string
	var active bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List run records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAdminClient(cmd)
			if active {
				return client.get("/api/v1/runs/active")
			}
			path := "/api/v1/runs"
			if definitionID != "" {
				path += "?definition=" + definitionID
			}
			return client.get(path)
		},
	}
	cmd.Flags().StringVar(&definitionID, "definition", "", "only runs of this definition")
	cmd.Flags().BoolVar(&active, "active", false, "only in-flight runs")
	return cmd
}

func newTriggerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <definition-id>",
		Short: "Fire an experiment now, bypassing its schedule but not its safety checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient(cmd).post("/api/v1/definitions/"+args[0]+"/trigger", nil)
		},
	}
}

func newHaltCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "halt <run-id>",
		Short: "Force-cancel a running experiment, triggering its rollback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient(cmd).post("/api/v1/runs/"+args[0]+"/halt", map[string]string{"reason": reason})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "operator requested cancellation", "why the run is being halted")
	return cmd
}
