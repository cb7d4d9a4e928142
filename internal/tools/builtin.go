package tools

import (
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// Built-in tool names. The web search tool is registered by the caller
// with whatever provider it has; its name is fixed so the auto heuristic
// can find it.
const (
	ShellTool     = "Shell Executor"
	SpellTool     = "Spellchecker"
	FetchTool     = "URL Fetch"
	WebSearchTool = "Web Search"
)

const fetchBodyLimit = 64 * 1024

// RegisterBuiltins adds the local tool set to the registry.
func RegisterBuiltins(reg *Registry) {
	reg.Register(ShellTool, Tool{
		Description: "Run shell commands on your machine.",
		Handler:     runShell,
	})
	reg.Register(SpellTool, Tool{
		Description: "Fix simple typos in your input.",
		Handler:     spellcheck,
	})
	reg.Register(FetchTool, Tool{
		Description: "Fetch the contents of a URL.",
		Handler:     fetchURL,
	})
}

func runShell(prompt string) string {
	out, err := exec.Command("sh", "-c", prompt).CombinedOutput()
	if err != nil {
		return fmt.Sprintf("Shell error: %v\n%s", err, strings.TrimSpace(string(out)))
	}
	return string(out)
}

func spellcheck(prompt string) string {
	return strings.ReplaceAll(prompt, "teh", "the")
}

func fetchURL(prompt string) string {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(strings.TrimSpace(prompt))
	if err != nil {
		return fmt.Sprintf("Fetch error: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return fmt.Sprintf("Fetch error: %v", err)
	}
	return string(body)
}
