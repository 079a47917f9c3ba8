package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mark3labs/mcp-go/mcp"

	pkgstrings "drasimcp/pkg/strings"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	return t
}

func (c *Console) cmdHelp() error {
	t := newTable()
	t.AppendHeader(table.Row{"COMMAND", "DESCRIPTION"})
	t.AppendRow(table.Row{"info", "Show connection and session details"})
	t.AppendRow(table.Row{"resources", "List the query resources the server exposes"})
	t.AppendRow(table.Row{"templates", "List resource URI templates"})
	t.AppendRow(table.Row{"read <uri>", "Read a query or entry resource"})
	t.AppendRow(table.Row{"tools", "List the per-query result tools"})
	t.AppendRow(table.Row{"call <tool> [json]", "Call a tool, e.g. call get_orders_results {\"limit\": 5}"})
	t.AppendRow(table.Row{"subscribe <uri>", "Subscribe to update notifications for a URI"})
	t.AppendRow(table.Row{"unsubscribe <uri>", "Drop a subscription"})
	t.AppendRow(table.Row{"notifications [on|off]", "Toggle live display or print pending notifications"})
	t.AppendRow(table.Row{"exit", "Leave the console"})
	t.Render()
	return nil
}

func (c *Console) cmdInfo() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t := newTable()
	t.AppendHeader(table.Row{"KEY", "VALUE"})
	t.AppendRow(table.Row{"endpoint", c.endpoint})
	t.AppendRow(table.Row{"server", c.serverInfo.Name})
	t.AppendRow(table.Row{"version", c.serverInfo.Version})
	t.AppendRow(table.Row{"protocol", c.protocolVersion})
	t.AppendRow(table.Row{"subscriptions", fmt.Sprintf("%d", len(c.subscriptions))})
	t.AppendRow(table.Row{"live notifications", onOff(c.showLive)})
	t.Render()

	for uri := range c.subscriptions {
		fmt.Printf("  subscribed: %s\n", uri)
	}
	return nil
}

func (c *Console) cmdResources(ctx context.Context) error {
	if err := c.refreshCaches(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	resources := c.resourceCache
	c.mu.RUnlock()

	if len(resources) == 0 {
		fmt.Println(text.FgYellow.Sprint("No resources found"))
		return nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"URI", "NAME", "DESCRIPTION"})
	for _, resource := range resources {
		t.AppendRow(table.Row{
			resource.URI,
			resource.Name,
			pkgstrings.TruncateDescription(resource.Description, pkgstrings.DefaultDescriptionMaxLen),
		})
	}
	t.Render()
	return nil
}

func (c *Console) cmdTemplates(ctx context.Context) error {
	result, err := c.client.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if err != nil {
		return fmt.Errorf("failed to list resource templates: %w", err)
	}
	if len(result.ResourceTemplates) == 0 {
		fmt.Println(text.FgYellow.Sprint("No resource templates found"))
		return nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"URI TEMPLATE", "NAME", "DESCRIPTION"})
	for _, tmpl := range result.ResourceTemplates {
		t.AppendRow(table.Row{
			templateURI(tmpl),
			tmpl.Name,
			pkgstrings.TruncateDescription(tmpl.Description, pkgstrings.DefaultDescriptionMaxLen),
		})
	}
	t.Render()
	return nil
}

func (c *Console) cmdRead(ctx context.Context, uri string) error {
	s := newSpinner(" Reading " + uri + "...")
	result, err := c.client.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{
			URI: uri,
		},
	})
	s.Stop()
	if err != nil {
		return fmt.Errorf("failed to read resource: %w", err)
	}

	for _, content := range result.Contents {
		switch tc := content.(type) {
		case mcp.TextResourceContents:
			printResourceText(tc)
		case *mcp.TextResourceContents:
			printResourceText(*tc)
		default:
			fmt.Printf("(non-text contents: %T)\n", content)
		}
	}
	return nil
}

func printResourceText(tc mcp.TextResourceContents) {
	if tc.MIMEType != "" {
		fmt.Println(text.FgHiCyan.Sprintf("%s (%s)", tc.URI, tc.MIMEType))
	} else {
		fmt.Println(text.FgHiCyan.Sprint(tc.URI))
	}
	fmt.Println(prettyJSON(tc.Text))
}

func (c *Console) cmdTools(ctx context.Context) error {
	if err := c.refreshCaches(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	tools := c.toolCache
	c.mu.RUnlock()

	if len(tools) == 0 {
		fmt.Println(text.FgYellow.Sprint("No tools found"))
		return nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"NAME", "DESCRIPTION"})
	for _, tool := range tools {
		t.AppendRow(table.Row{
			tool.Name,
			pkgstrings.TruncateDescription(tool.Description, pkgstrings.DefaultDescriptionMaxLen),
		})
	}
	t.Render()
	return nil
}

func (c *Console) cmdCall(ctx context.Context, name, rawArgs string) error {
	args, err := parseArguments(rawArgs)
	if err != nil {
		return err
	}

	s := newSpinner(" Calling " + name + "...")
	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	s.Stop()
	if err != nil {
		return fmt.Errorf("tool call failed: %w", err)
	}

	if result.IsError {
		fmt.Println(text.FgRed.Sprint("Tool returned an error:"))
	}
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			fmt.Println(prettyJSON(tc.Text))
		}
	}
	return nil
}

func (c *Console) cmdSubscribe(ctx context.Context, uri string) error {
	var req mcp.SubscribeRequest
	req.Params.URI = uri
	if err := c.client.Subscribe(ctx, req); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	c.mu.Lock()
	c.subscriptions[uri] = true
	c.mu.Unlock()
	fmt.Printf("Subscribed to %s\n", uri)
	return nil
}

func (c *Console) cmdUnsubscribe(ctx context.Context, uri string) error {
	var req mcp.UnsubscribeRequest
	req.Params.URI = uri
	if err := c.client.Unsubscribe(ctx, req); err != nil {
		return fmt.Errorf("unsubscribe failed: %w", err)
	}

	c.mu.Lock()
	delete(c.subscriptions, uri)
	c.mu.Unlock()
	fmt.Printf("Unsubscribed from %s\n", uri)
	return nil
}

func (c *Console) cmdNotifications(args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "on":
			c.mu.Lock()
			c.showLive = true
			c.mu.Unlock()
			fmt.Println("Live notification display enabled")
			return nil
		case "off":
			c.mu.Lock()
			c.showLive = false
			c.mu.Unlock()
			fmt.Println("Live notification display disabled")
			return nil
		default:
			return fmt.Errorf("usage: notifications [on|off]")
		}
	}

	// Without an argument, drain whatever queued up while live display
	// was off.
	printed := 0
	for {
		select {
		case notification := <-c.notifications:
			fmt.Println(formatNotification(notification))
			printed++
		default:
			c.mu.RLock()
			live := c.showLive
			c.mu.RUnlock()
			if printed == 0 {
				fmt.Printf("No pending notifications (live display %s)\n", onOff(live))
			}
			return nil
		}
	}
}

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = suffix
	s.Start()
	return s
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// parseArguments parses the optional JSON tail of a call command.
func parseArguments(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return args, nil
}

// prettyJSON indents s when it is JSON and returns it untouched
// otherwise.
func prettyJSON(s string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(s), "", "  "); err != nil {
		return s
	}
	return buf.String()
}

// templateURI renders a resource template's raw URI template. The
// template type marshals it as a plain JSON string, which avoids
// depending on the wrapped template implementation.
func templateURI(tmpl mcp.ResourceTemplate) string {
	raw, err := json.Marshal(tmpl)
	if err != nil {
		return ""
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	uri, _ := fields["uriTemplate"].(string)
	return uri
}

func formatNotification(notification mcp.JSONRPCNotification) string {
	params, err := json.Marshal(notification.Params)
	if err != nil || string(params) == "{}" || string(params) == "null" {
		return text.FgHiBlue.Sprintf("notification: %s", notification.Method)
	}
	return text.FgHiBlue.Sprintf("notification: %s %s", notification.Method, params)
}
