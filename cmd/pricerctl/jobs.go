package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

func newJobCreateCmd() *cobra.Command {
	var jobType, sourceRef, item string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job (CSV, IMAGE, or SINGLE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"job_type": jobType, "source_ref": sourceRef}
			if item != "" {
				payload["item"] = json.RawMessage(item)
			}
			data, err := doRequest("POST", apiFlag+"/api/jobs", apiKeyFlag, payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "CSV", "job_type: CSV, IMAGE, or SINGLE")
	cmd.Flags().StringVar(&sourceRef, "source", "", "source_ref (file path for CSV/IMAGE)")
	cmd.Flags().StringVar(&item, "item", "", "inline JSON row for job_type SINGLE")
	return cmd
}

func newJobGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Get a job's status and counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doRequest("GET", apiFlag+"/api/jobs/"+url.PathEscape(args[0]), apiKeyFlag, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
}

func newJobListItemsCmd() *cobra.Command {
	var status, cursor string
	var pageSize int
	cmd := &cobra.Command{
		Use:   "list <job-id>",
		Short: "List items in a job (keyset-paginated)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			if pageSize > 0 {
				q.Set("page_size", fmt.Sprint(pageSize))
			}
			u := apiFlag + "/api/jobs/" + url.PathEscape(args[0]) + "/items?" + q.Encode()
			data, err := doRequest("GET", u, apiKeyFlag, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "comma-separated status filter")
	cmd.Flags().StringVar(&cursor, "cursor", "", "opaque page cursor")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size")
	return cmd
}

func newJobKickoffCmd() *cobra.Command {
	var sliceMs int
	cmd := &cobra.Command{
		Use:   "kickoff <job-id>",
		Short: "Run one bounded worker slice against a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doRequest("POST", apiFlag+"/api/jobs/"+url.PathEscape(args[0])+"/kickoff", apiKeyFlag,
				map[string]interface{}{"slice_ms": sliceMs})
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	cmd.Flags().IntVar(&sliceMs, "slice-ms", 5000, "slice wall-clock budget in milliseconds")
	return cmd
}

func newJobTransitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition <job-id> <to-state>",
		Short: "Transition a job's queue_state (e.g. RUNNING, PAUSED)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doRequest("POST", apiFlag+"/api/jobs/"+url.PathEscape(args[0])+"/transition", apiKeyFlag,
				map[string]interface{}{"to": args[1]})
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	return cmd
}

func newJobReprocessCmd() *cobra.Command {
	var scope, statuses string
	var resetAttempts bool
	cmd := &cobra.Command{
		Use:   "reprocess <job-id>",
		Short: "Reprocess items in a job by scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"scope": scope, "reset_attempts": resetAttempts}
			if statuses != "" {
				payload["statuses"] = splitCommaList(statuses)
			}
			data, err := doRequest("POST", apiFlag+"/api/jobs/"+url.PathEscape(args[0])+"/reprocess", apiKeyFlag, payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "failed_and_not_found", "failed_and_not_found, item_ids, or status_filter")
	cmd.Flags().StringVar(&statuses, "statuses", "", "comma-separated statuses for scope=status_filter")
	cmd.Flags().BoolVar(&resetAttempts, "reset-attempts", false, "zero the attempts counter on reset items")
	return cmd
}

func newJobExportCmd() *cobra.Command {
	var format string
	var includeErrors bool
	cmd := &cobra.Command{
		Use:   "export <job-id>",
		Short: "Export a job's resolved results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("format", format)
			if !includeErrors {
				q.Set("include_errors", "false")
			}
			u := apiFlag + "/api/jobs/" + url.PathEscape(args[0]) + "/export?" + q.Encode()
			data, err := doRequest("GET", u, apiKeyFlag, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or tsv")
	cmd.Flags().BoolVar(&includeErrors, "include-errors", true, "include ERROR items in the export")
	return cmd
}

func splitCommaList(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
