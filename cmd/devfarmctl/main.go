// Command devfarmctl is a CLI client for a running devfarmd, exposing
// add/list/remove-all/shutdown/shutdown-hard/join as cobra subcommands
// against devfarmd's JSON-over-HTTP control API: one small builder
// function per subcommand, registered onto a shared root cobra.Command, talking to
// the daemon over a plain net/http client.
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

	devfarmerrors "github.com/twitter/devfarm/common/errors"
)

const defaultAddr = "localhost:9090"

type client struct {
	addr       string
	httpClient *http.Client
}

func newClient(addr string) *client {
	return &client{addr: addr, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (c *client) url(path string) string {
	return "http://" + c.addr + path
}

func main() {
	var addr string

	root := &cobra.Command{
		Use:   "devfarmctl",
		Short: "devfarmctl is a command-line client for devfarmd",
	}
	root.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "devfarmd control API address")

	root.AddCommand(addCmd(&addr))
	root.AddCommand(listCmd(&addr))
	root.AddCommand(removeAllCmd(&addr))
	root.AddCommand(shutdownCmd(&addr))
	root.AddCommand(shutdownHardCmd(&addr))
	root.AddCommand(joinCmd(&addr))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := devfarmerrors.UnknownErrorExitCode
		if exitErr, ok := err.(*devfarmerrors.ExitCodeError); ok {
			code = exitErr.GetExitCode()
		}
		os.Exit(int(code))
	}
}

func addCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add [flags] -- argv...",
		Short: "add a command to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*addr)
			body, _ := json.Marshal(map[string][]string{"args": args})
			resp, err := c.httpClient.Post(c.url("/api/commands"), "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusConflict {
				return devfarmerrors.NewError(fmt.Errorf("scheduler is shutting down"), devfarmerrors.SchedulerClosedExitCode)
			}
			if resp.StatusCode != http.StatusOK {
				msg, _ := io.ReadAll(resp.Body)
				return devfarmerrors.NewError(fmt.Errorf("add_command rejected: %s", msg), devfarmerrors.ConfigurationErrorExitCode)
			}
			var out map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			fmt.Println(out["id"])
			return nil
		},
	}
}

func listCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list queued and running commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*addr)
			resp, err := c.httpClient.Get(c.url("/api/commands"))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

func removeAllCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-all",
		Short: "remove every still-queued command, leaving running workers alone",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*addr)
			req, err := http.NewRequest(http.MethodDelete, c.url("/api/commands"), nil)
			if err != nil {
				return err
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return nil
		},
	}
}

func shutdownCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "begin a graceful shutdown (OPEN -> CLOSING)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*addr)
			resp, err := c.httpClient.Post(c.url("/api/shutdown"), "application/json", nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return nil
		},
	}
}

func shutdownHardCmd(addr *string) *cobra.Command {
	var graceMs int64
	c := &cobra.Command{
		Use:   "shutdown-hard",
		Short: "begin a hard shutdown: force every running worker, escalate any still running after the grace window",
	}
	c.Flags().Int64Var(&graceMs, "grace_ms", 0, "grace window in milliseconds before escalating (0: use devfarmd's default)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		cl := newClient(*addr)
		resp, err := cl.httpClient.Post(fmt.Sprintf("%s?grace_ms=%d", cl.url("/api/shutdown_hard"), graceMs), "application/json", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return nil
	}
	return c
}

func joinCmd(addr *string) *cobra.Command {
	var timeoutMs int64
	c := &cobra.Command{
		Use:   "join",
		Short: "block until the scheduler reaches CLOSED, or the timeout elapses",
	}
	c.Flags().Int64Var(&timeoutMs, "timeout_ms", 0, "how long to wait, in milliseconds (0: wait forever)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		cl := newClient(*addr)
		// No client-side timeout: the server's Join bounds the wait.
		cl.httpClient.Timeout = 0
		resp, err := cl.httpClient.Get(fmt.Sprintf("%s?timeout_ms=%d", cl.url("/api/join"), timeoutMs))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		var out map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		closed, _ := out["closed"].(bool)
		fmt.Printf("state=%v closed=%v\n", out["state"], closed)
		if !closed {
			return devfarmerrors.NewError(fmt.Errorf("join timed out"), devfarmerrors.JoinTimeoutExitCode)
		}
		return nil
	}
	return c
}
