package llm

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPBooksQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		fmt.Fprint(w, `{"text":"chapter three covers this"}`)
	}))
	defer srv.Close()

	books := NewHTTPBooks(srv.URL)
	assert.Equal(t, "chapter three covers this", books.QueryBooks("where is it covered"))
}

func TestHTTPBooksPlainTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "plain answer")
	}))
	defer srv.Close()

	books := NewHTTPBooks(srv.URL)
	assert.Equal(t, "plain answer", books.QueryBooks("anything"))
}

func TestHTTPBooksErrorsAreDescriptiveStrings(t *testing.T) {
	assert.Contains(t, NewHTTPBooks("").QueryBooks("q"), "no books service")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	assert.Contains(t, NewHTTPBooks(srv.URL).QueryBooks("q"), "503")
}
