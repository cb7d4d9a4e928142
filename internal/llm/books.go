package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPBooks queries the external document-RAG service over HTTP. The
// service owns indexing and ranking; this client only carries the prompt
// across and brings text back.
type HTTPBooks struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPBooks(baseURL string) *HTTPBooks {
	return &HTTPBooks{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// QueryBooks implements BooksQuerier. Failures come back as descriptive
// strings so a missing or broken books service never fails a turn.
func (b *HTTPBooks) QueryBooks(prompt string) string {
	if b.baseURL == "" {
		return "Error: no books service configured."
	}

	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return fmt.Sprintf("Error: building books query: %v", err)
	}

	url := b.baseURL + "/query"
	resp, err := b.httpClient.Post(url, "application/json", strings.NewReader(string(body)))
	if err != nil {
		return fmt.Sprintf("Error: books query to %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error: reading books response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: HTTP %d from %s", resp.StatusCode, url)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Text != "" {
		return parsed.Text
	}
	return string(raw)
}
