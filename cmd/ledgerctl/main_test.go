package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseAccountNumber(t *testing.T) {
	if n, err := parseAccountNumber("7"); err != nil || n != 7 {
		t.Errorf("parseAccountNumber(7) = %d, %v", n, err)
	}
	for _, bad := range []string{"256", "-1", "x"} {
		if _, err := parseAccountNumber(bad); err == nil {
			t.Errorf("parseAccountNumber(%q) should fail", bad)
		}
	}
}

func TestTransferCommand(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/transfer" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "entry_hash": "ab", "entry_index": 1})
	}))
	defer srv.Close()

	rootCmd.SetArgs([]string{"--node", srv.URL, "transfer", "1", "2", "10"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got["from"] != float64(1) || got["to"] != float64(2) || got["lamports"] != float64(10) {
		t.Errorf("request body = %v", got)
	}

	rootCmd.SetArgs([]string{"--node", srv.URL, "transfer", "1", "2", "lots"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error for non-numeric lamports")
	}
}
