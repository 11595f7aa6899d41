package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAndPrintSucceedsOnJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"green"}`))
	}))
	defer srv.Close()

	addr = srv.URL
	err := fetchAndPrint("/health")
	require.NoError(t, err)
}

func TestFetchAndPrintReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	addr = srv.URL
	err := fetchAndPrint("/shards")
	assert.Error(t, err)
}

func TestFetchAndPrintReturnsErrorOnUnreachableHost(t *testing.T) {
	addr = "http://127.0.0.1:1"
	err := fetchAndPrint("/health")
	assert.Error(t, err)
}
