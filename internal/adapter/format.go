package adapter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

func validFormat(f Format) error {
	switch f {
	case FormatJSON, FormatYAML, FormatTable:
		return nil
	}
	return fmt.Errorf("unsupported format %q", f)
}

func render(resp *Response, format Format) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return "", fmt.Errorf("rendering json: %w", err)
		}
		return string(data), nil
	case FormatYAML:
		data, err := yaml.Marshal(resp)
		if err != nil {
			return "", fmt.Errorf("rendering yaml: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	case FormatTable:
		return renderTable(resp), nil
	}
	return "", fmt.Errorf("unsupported format %q", format)
}

func renderTable(resp *Response) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	switch {
	case resp.Listing != nil:
		fmt.Fprintln(w, "NAME\tSOURCE\tDESCRIPTION")
		for _, info := range resp.Listing {
			fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, info.Source, info.Description)
			for _, p := range info.Parameters {
				req := ""
				if p.Required {
					req = " (required)"
				}
				fmt.Fprintf(w, "  --param %s\t%s%s\t%s\n", p.Name, p.Type, req, p.Description)
			}
		}
	case resp.DryRun:
		fmt.Fprintf(w, "workflow\t%s (dry run)\n", resp.Workflow)
		fmt.Fprintln(w, "STATE\tACTION\tDETAIL")
		for _, p := range resp.Plan {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.State, p.Action, p.Detail)
		}
	default:
		fmt.Fprintf(w, "workflow\t%s\n", resp.Workflow)
		fmt.Fprintf(w, "status\t%s\n", resp.Status)
		fmt.Fprintf(w, "final state\t%s\n", resp.FinalState)
		fmt.Fprintf(w, "transitions\t%d\n", resp.Transitions)
		if resp.Error != "" {
			fmt.Fprintf(w, "error\t%s\n", resp.Error)
		}
		keys := make([]string, 0, len(resp.Context))
		for k := range resp.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "context.%s\t%v\n", k, resp.Context[k])
		}
	}

	w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}
