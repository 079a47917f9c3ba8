package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// commandTimeout bounds a single console command round trip.
	commandTimeout = 2 * time.Minute

	// notificationBacklog is how many unread notifications the console
	// keeps before dropping the oldest.
	notificationBacklog = 64

	historyFileName = ".drasimcp_console_history"
)

// errQuit ends the readline loop without reporting an error.
var errQuit = errors.New("quit")

// Config holds the console's connection settings.
type Config struct {
	// Endpoint is the MCP endpoint URL, e.g. http://localhost:8080/mcp.
	Endpoint string

	// ClientVersion is reported to the server during initialize.
	ClientVersion string
}

// Console is an interactive client for one reaction's MCP endpoint.
type Console struct {
	endpoint      string
	clientVersion string

	client *client.Client
	rl     *readline.Instance

	mu              sync.RWMutex
	serverInfo      mcp.Implementation
	protocolVersion string
	toolCache       []mcp.Tool
	resourceCache   []mcp.Resource
	subscriptions   map[string]bool
	showLive        bool

	notifications chan mcp.JSONRPCNotification
}

// New creates a console for the given endpoint. Run does the actual
// connecting.
func New(cfg Config) *Console {
	return &Console{
		endpoint:      cfg.Endpoint,
		clientVersion: cfg.ClientVersion,
		subscriptions: make(map[string]bool),
		showLive:      true,
		notifications: make(chan mcp.JSONRPCNotification, notificationBacklog),
	}
}

// Run connects, performs the MCP handshake, and enters the command
// loop until the user exits or the context is cancelled.
func (c *Console) Run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	defer c.client.Close()

	fmt.Printf("Connected to %s (%s %s, protocol %s)\n",
		c.endpoint, c.serverInfo.Name, c.serverInfo.Version, c.protocolVersion)

	if err := c.refreshCaches(ctx); err != nil {
		fmt.Println(text.FgYellow.Sprintf("Warning: %v", err))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:              c.endpoint + "> ",
		HistoryFile:         filepath.Join(os.TempDir(), historyFileName),
		AutoComplete:        c.completer(),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()
	c.rl = rl

	stop := make(chan struct{})
	defer close(stop)
	go c.printLiveNotifications(ctx, stop)

	fmt.Println("Type 'help' for available commands. Use TAB for completion.")
	fmt.Println()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				continue
			}
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := c.execute(ctx, input); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Println(text.FgRed.Sprintf("Error: %v", err))
		}
		fmt.Println()
	}
}

func (c *Console) connect(ctx context.Context) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Connecting to " + c.endpoint + "..."
	s.Start()
	defer s.Stop()

	mcpClient, err := client.NewStreamableHttpClient(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	mcpClient.OnNotification(func(notification mcp.JSONRPCNotification) {
		select {
		case c.notifications <- notification:
		default:
			// Backlog full; the oldest unread notification makes room.
			select {
			case <-c.notifications:
			default:
			}
			select {
			case c.notifications <- notification:
			default:
			}
		}
	})

	initReq := mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "drasimcp-console",
				Version: c.clientVersion,
			},
		},
	}

	initCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	result, err := mcpClient.Initialize(initCtx, initReq)
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialization failed: %w", err)
	}

	c.client = mcpClient
	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.protocolVersion = result.ProtocolVersion
	c.mu.Unlock()
	return nil
}

// refreshCaches reloads the tool and resource lists used by tab
// completion and the info command.
func (c *Console) refreshCaches(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	tools, err := c.client.ListTools(reqCtx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}
	resources, err := c.client.ListResources(reqCtx, mcp.ListResourcesRequest{})
	if err != nil {
		return fmt.Errorf("failed to list resources: %w", err)
	}

	c.mu.Lock()
	c.toolCache = tools.Tools
	c.resourceCache = resources.Resources
	c.mu.Unlock()
	return nil
}

// execute parses one input line and runs the matching command with its
// own timeout so a hung call cannot wedge the loop.
func (c *Console) execute(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch name {
	case "help", "?":
		return c.cmdHelp()
	case "info":
		return c.cmdInfo()
	case "resources":
		return c.cmdResources(cmdCtx)
	case "templates":
		return c.cmdTemplates(cmdCtx)
	case "read":
		if len(args) != 1 {
			return fmt.Errorf("usage: read <uri>")
		}
		return c.cmdRead(cmdCtx, args[0])
	case "tools":
		return c.cmdTools(cmdCtx)
	case "call":
		if len(args) == 0 {
			return fmt.Errorf("usage: call <tool> [json arguments]")
		}
		return c.cmdCall(cmdCtx, args[0], strings.Join(args[1:], " "))
	case "subscribe":
		if len(args) != 1 {
			return fmt.Errorf("usage: subscribe <uri>")
		}
		return c.cmdSubscribe(cmdCtx, args[0])
	case "unsubscribe":
		if len(args) != 1 {
			return fmt.Errorf("usage: unsubscribe <uri>")
		}
		return c.cmdUnsubscribe(cmdCtx, args[0])
	case "notifications":
		return c.cmdNotifications(args)
	case "exit", "quit":
		fmt.Println("Goodbye!")
		return errQuit
	default:
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", fields[0])
	}
}

// printLiveNotifications writes incoming notifications above the
// prompt while live display is on.
func (c *Console) printLiveNotifications(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case notification := <-c.notifications:
			c.mu.RLock()
			show := c.showLive
			c.mu.RUnlock()
			if !show {
				continue
			}
			if c.rl != nil {
				c.rl.Stdout().Write([]byte("\r\033[K"))
			}
			fmt.Println(formatNotification(notification))
			if c.rl != nil {
				c.rl.Refresh()
			}
		}
	}
}

func (c *Console) completer() *readline.PrefixCompleter {
	uris := readline.PcItemDynamic(c.resourceURIs)
	tools := readline.PcItemDynamic(c.toolNames)

	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("?"),
		readline.PcItem("info"),
		readline.PcItem("resources"),
		readline.PcItem("templates"),
		readline.PcItem("read", uris),
		readline.PcItem("tools"),
		readline.PcItem("call", tools),
		readline.PcItem("subscribe", uris),
		readline.PcItem("unsubscribe", uris),
		readline.PcItem("notifications",
			readline.PcItem("on"),
			readline.PcItem("off"),
		),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

func (c *Console) resourceURIs(string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	uris := make([]string, len(c.resourceCache))
	for i, resource := range c.resourceCache {
		uris[i] = resource.URI
	}
	sort.Strings(uris)
	return uris
}

func (c *Console) toolNames(string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.toolCache))
	for i, tool := range c.toolCache {
		names[i] = tool.Name
	}
	sort.Strings(names)
	return names
}

// filterInput blocks Ctrl+Z so the readline state cannot be suspended
// into an unusable terminal.
func filterInput(r rune) (rune, bool) {
	if r == readline.CharCtrlZ {
		return r, false
	}
	return r, true
}
