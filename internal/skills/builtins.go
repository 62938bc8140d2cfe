package skills

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/net/html"

	"aura/internal/logging"
	"aura/internal/safety"
	"aura/internal/types"
	"aura/internal/world"
)

// BuiltinDeps carries the shared services built-in skills need.
type BuiltinDeps struct {
	Sandbox *safety.PathSandbox
	World   *world.Model
	LLM     types.LLMClient
	HTTP    *http.Client
	// SearchURL is the search endpoint template; %s receives the query.
	SearchURL string
}

// RegisterBuiltins installs the standard skill set.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) error {
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.SearchURL == "" {
		deps.SearchURL = "https://duckduckgo.com/html/?q=%s"
	}

	builtins := []*Skill{
		{
			Name:        "time.now",
			Description: "Current local date and time",
			Capability:  "system_control",
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				return time.Now().Format("Monday, 2 January 2006 15:04:05 MST"), nil
			},
		},
		{
			Name:        "system.open_app",
			Description: "Open an application by name",
			Capability:  "system_control",
			Schema: Schema{
				Required:   []string{"name"},
				Properties: map[string]Property{"name": {Type: "string", Description: "Application name"}},
			},
			Handler: openAppHandler(deps),
		},
		{
			Name:        "web.search",
			Description: "Search the web and return result snippets",
			Capability:  "internet",
			Schema: Schema{
				Required:   []string{"query"},
				Properties: map[string]Property{"query": {Type: "string", Description: "Search query"}},
			},
			Handler: searchHandler(deps),
		},
		{
			Name:        "web.fetch",
			Description: "Fetch a URL and return its readable text",
			Capability:  "internet",
			Schema: Schema{
				Required:   []string{"url"},
				Properties: map[string]Property{"url": {Type: "string", Description: "URL to fetch"}},
			},
			Handler: fetchHandler(deps),
		},
		{
			Name:        "filesystem.read_file",
			Description: "Read a file inside the workspace",
			Capability:  "filesystem_read",
			Schema: Schema{
				Required:   []string{"path"},
				Properties: map[string]Property{"path": {Type: "string", Description: "File path or semantic alias"}},
			},
			Handler: readFileHandler(deps),
		},
		{
			Name:        "filesystem.write_file",
			Description: "Write content to a file inside the workspace",
			Capability:  "filesystem_write",
			Schema: Schema{
				Required: []string{"path", "content"},
				Properties: map[string]Property{
					"path":    {Type: "string", Description: "File path or semantic alias"},
					"content": {Type: "string", Description: "Content to write"},
				},
			},
			Handler: writeFileHandler(deps),
		},
		{
			Name:        "shell.run",
			Description: "Run a shell command in the workspace",
			Capability:  "shell",
			Schema: Schema{
				Required:   []string{"command"},
				Properties: map[string]Property{"command": {Type: "string", Description: "Command to run"}},
			},
			Handler: shellHandler(deps),
		},
		{
			Name:        "media.control",
			Description: "Control media playback and volume (play, pause, next, previous, up, down)",
			Capability:  "media",
			Schema: Schema{
				Properties: map[string]Property{"action": {Type: "string", Description: "play|pause|next|previous|up|down"}},
			},
			Handler: mediaHandler(),
		},
		{
			Name:        "system.screenshot",
			Description: "Capture the screen to a file and return its path",
			Capability:  "vision",
			Handler:     screenshotHandler(deps),
		},
		{
			Name:        "research.summarize",
			Description: "Fetch a URL and summarize its content",
			Capability:  "internet",
			Schema: Schema{
				Required:   []string{"url"},
				Properties: map[string]Property{"url": {Type: "string", Description: "URL to summarize"}},
			},
			Handler: summarizeHandler(deps),
		},
	}

	for _, s := range builtins {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	logging.Skills("registered %d built-in skills", len(builtins))
	return nil
}

func openAppHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		name, _ := params["name"].(string)
		command := name
		if deps.World != nil {
			if cmd, ok := deps.World.ResolveApp(name); ok {
				command = cmd
			}
		}

		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.CommandContext(ctx, "open", "-a", command)
		case "windows":
			cmd = exec.CommandContext(ctx, "cmd", "/c", "start", "", command)
		default:
			cmd = exec.CommandContext(ctx, command)
		}
		if err := cmd.Start(); err != nil {
			return "", fmt.Errorf("open %s: %w", name, err)
		}
		if deps.World != nil {
			deps.World.ObserveHabit("open " + strings.ToLower(name))
		}
		return fmt.Sprintf("Opened %s.", name), nil
	}
}

func searchHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		query, _ := params["query"].(string)
		target := fmt.Sprintf(deps.SearchURL, url.QueryEscape(query))
		text, err := fetchReadable(ctx, deps.HTTP, target, 4000)
		if err != nil {
			return "", fmt.Errorf("search failed: %w", err)
		}
		return text, nil
	}
}

func fetchHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		target, _ := params["url"].(string)
		return fetchReadable(ctx, deps.HTTP, target, 8000)
	}
}

func readFileHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		path, _ := params["path"].(string)
		if deps.World != nil {
			path = deps.World.ResolvePath(path)
		}
		if deps.Sandbox != nil {
			resolved, err := deps.Sandbox.Check(path)
			if err != nil {
				return "", err
			}
			path = resolved
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		const maxLen = 64 * 1024
		if len(data) > maxLen {
			return string(data[:maxLen]) + "\n... (truncated)", nil
		}
		return string(data), nil
	}
}

func writeFileHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		path, _ := params["path"].(string)
		content, _ := params["content"].(string)
		if deps.World != nil {
			path = deps.World.ResolvePath(path)
		}
		if deps.Sandbox != nil {
			resolved, err := deps.Sandbox.Check(path)
			if err != nil {
				return "", err
			}
			path = resolved
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		return fmt.Sprintf("Wrote %d bytes to %s.", len(content), path), nil
	}
}

func shellHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		command, _ := params["command"].(string)
		if err := safety.ValidateCommand(command); err != nil {
			return "", err
		}
		shell, flag := "/bin/sh", "-c"
		if runtime.GOOS == "windows" {
			shell, flag = "cmd", "/c"
		}
		out, err := exec.CommandContext(ctx, shell, flag, command).CombinedOutput()
		result := strings.TrimSpace(string(out))
		if err != nil {
			return "", fmt.Errorf("command failed: %w\n%s", err, result)
		}
		if result == "" {
			result = "(no output)"
		}
		return result, nil
	}
}

func mediaHandler() Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		action, _ := params["action"].(string)
		if action == "" {
			action = "play"
		}
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			script := map[string]string{
				"play": `tell application "Music" to play`, "pause": `tell application "Music" to pause`,
				"next": `tell application "Music" to next track`, "previous": `tell application "Music" to previous track`,
				"up":   `set volume output volume (output volume of (get volume settings) + 10)`,
				"down": `set volume output volume (output volume of (get volume settings) - 10)`,
			}[action]
			if script == "" {
				return "", fmt.Errorf("unknown media action %q", action)
			}
			cmd = exec.CommandContext(ctx, "osascript", "-e", script)
		default:
			args := map[string][]string{
				"play": {"play-pause"}, "pause": {"play-pause"}, "next": {"next"}, "previous": {"previous"},
				"up": {"volume", "0.1+"}, "down": {"volume", "0.1-"},
			}[action]
			if args == nil {
				return "", fmt.Errorf("unknown media action %q", action)
			}
			cmd = exec.CommandContext(ctx, "playerctl", args...)
		}
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("media control: %w\n%s", err, strings.TrimSpace(string(out)))
		}
		return fmt.Sprintf("Media: %s.", action), nil
	}
}

func screenshotHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		out := fmt.Sprintf("%s/aura-screen-%d.png", os.TempDir(), time.Now().UnixNano())
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.CommandContext(ctx, "screencapture", "-x", out)
		case "windows":
			return "", fmt.Errorf("screenshot not supported on windows without a helper")
		default:
			cmd = exec.CommandContext(ctx, "scrot", out)
		}
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("screenshot: %w", err)
		}
		return out, nil
	}
}

func summarizeHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		target, _ := params["url"].(string)
		text, err := fetchReadable(ctx, deps.HTTP, target, 12000)
		if err != nil {
			return "", err
		}
		if deps.LLM == nil {
			return text, nil
		}
		return deps.LLM.CompleteWithSystem(ctx,
			"Summarize the following page content in a few tight paragraphs. Keep concrete facts.",
			text)
	}
}

// fetchReadable downloads a page and extracts visible text via the HTML
// tokenizer, skipping script and style subtrees.
func fetchReadable(ctx context.Context, client *http.Client, target string, maxLen int) (string, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", target)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "aura/0.1 (+personal assistant)")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	return ExtractText(resp.Body, maxLen)
}

// ExtractText pulls visible text from an HTML stream.
func ExtractText(r io.Reader, maxLen int) (string, error) {
	z := html.NewTokenizer(r)
	var b strings.Builder
	skipDepth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return squeezeWhitespace(b.String(), maxLen), nil
			}
			return "", fmt.Errorf("parse html: %w", z.Err())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
		if b.Len() > maxLen*2 {
			return squeezeWhitespace(b.String(), maxLen), nil
		}
	}
}

func squeezeWhitespace(s string, maxLen int) string {
	fields := strings.Fields(s)
	out := strings.Join(fields, " ")
	if len(out) > maxLen {
		out = out[:maxLen] + "..."
	}
	return out
}
