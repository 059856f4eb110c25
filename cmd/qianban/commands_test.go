package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPaint(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if result := paint(tintGreen, "hello"); strings.Contains(result, "\033[") {
		t.Errorf("paint with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	result := paint(tintGreen, "hello")
	if result != "\033[32mhello\033[0m" {
		t.Errorf("paint = %q, want green SGR wrapping", result)
	}
}

func TestAPIClient_SetsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	client := &apiClient{
		baseURL:    srv.URL,
		token:      "t0k3n",
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	resp, err := client.get(context.Background(), "/interests")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer t0k3n" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestDecodeJSON_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"message":"activity is full","type":"conflict"}}`))
	}))
	defer srv.Close()

	client := &apiClient{
		baseURL:    srv.URL,
		token:      "t",
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	resp, err := client.post(context.Background(), "/activities/a1/join", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	var out map[string]any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected an error for a 409 response")
	}
	if !strings.Contains(err.Error(), "activity is full") {
		t.Errorf("error = %v, want server message included", err)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := []string{"start", "stop", "status", "chat", "interests", "friends", "activities", "health", "config"}
	for _, name := range want {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}
