package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	voicelink "github.com/halyard-ai/voicelink/sdk"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestParseChatConfig_DefaultsAndEnv(t *testing.T) {
	t.Parallel()

	cfg, err := parseChatConfig(nil, envMap(map[string]string{
		"VOICELINK_BASE_URL": "http://10.0.0.5:7860",
		"VOICELINK_API_KEY":  "vl-test-key",
	}))
	if err != nil {
		t.Fatalf("parseChatConfig error: %v", err)
	}

	if cfg.BaseURL != "http://10.0.0.5:7860" {
		t.Fatalf("BaseURL=%q, want env value", cfg.BaseURL)
	}
	if cfg.APIKey != "vl-test-key" {
		t.Fatalf("APIKey=%q, want env value", cfg.APIKey)
	}
	if cfg.TTSModel != defaultTTSModel {
		t.Fatalf("TTSModel=%q, want %q", cfg.TTSModel, defaultTTSModel)
	}
	if cfg.ConnectTimeout != defaultConnectTimeout {
		t.Fatalf("ConnectTimeout=%v, want %v", cfg.ConnectTimeout, defaultConnectTimeout)
	}
}

func TestParseChatConfig_FlagsBeatEnv(t *testing.T) {
	t.Parallel()

	cfg, err := parseChatConfig(
		[]string{"--base-url", "http://127.0.0.1:9999", "--tts-model", "mars-pro", "--no-audio"},
		envMap(map[string]string{"VOICELINK_BASE_URL": "http://10.0.0.5:7860"}),
	)
	if err != nil {
		t.Fatalf("parseChatConfig error: %v", err)
	}
	if cfg.BaseURL != "http://127.0.0.1:9999" {
		t.Fatalf("BaseURL=%q, want flag value", cfg.BaseURL)
	}
	if cfg.TTSModel != "mars-pro" {
		t.Fatalf("TTSModel=%q, want %q", cfg.TTSModel, "mars-pro")
	}
	if !cfg.NoAudio {
		t.Fatalf("NoAudio=false, want true")
	}
}

func TestParseChatConfig_Validation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad base url", []string{"--base-url", "not-a-url"}, "base-url"},
		{"credentials in url", []string{"--base-url", "http://user:pw@host:7860"}, "credentials"},
		{"unknown voice model", []string{"--tts-model", "mars-ultra"}, "tts-model"},
		{"zero timeout", []string{"--connect-timeout", "0s"}, "connect-timeout"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseChatConfig(tc.args, envMap(nil))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error=%v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestHandleCommand_StatusWhileDisconnected(t *testing.T) {
	t.Parallel()

	client := voicelink.NewClient(voicelink.WithBaseURL("http://127.0.0.1:1"))
	sess := client.SessionFromID("sess-7")
	var out, errOut bytes.Buffer

	handled, err := handleCommand(context.Background(), "/status", sess, client, &out, &errOut)
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v, want handled", handled, err)
	}
	if !strings.Contains(out.String(), "disconnected") || !strings.Contains(out.String(), "sess-7") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestHandleCommand_MuteWithoutConnection(t *testing.T) {
	t.Parallel()

	client := voicelink.NewClient(voicelink.WithBaseURL("http://127.0.0.1:1"))
	sess := client.SessionFromID("sess-7")
	var out, errOut bytes.Buffer

	handled, err := handleCommand(context.Background(), "/mute", sess, client, &out, &errOut)
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v, want handled", handled, err)
	}
	if !strings.Contains(out.String(), "not connected") {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if sess.IsMuted() {
		t.Fatalf("IsMuted()=true, want false without transport")
	}
}

func TestHandleCommand_TranscriptEmpty(t *testing.T) {
	t.Parallel()

	client := voicelink.NewClient(voicelink.WithBaseURL("http://127.0.0.1:1"))
	sess := client.SessionFromID("sess-7")
	var out, errOut bytes.Buffer

	handled, err := handleCommand(context.Background(), "/transcript", sess, client, &out, &errOut)
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v, want handled", handled, err)
	}
	if !strings.Contains(out.String(), "transcript is empty") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestHandleCommand_UploadSendsFile(t *testing.T) {
	t.Parallel()

	var gotFilename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/upload-book") {
			file, header, err := r.FormFile("file")
			if err != nil {
				t.Errorf("FormFile: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = file.Close()
			gotFilename = header.Filename
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"filename":"notes.txt","file_uri":"files/abc123"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("chapter one"), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	client := voicelink.NewClient(
		voicelink.WithBaseURL(server.URL),
		voicelink.WithHTTPClient(server.Client()),
	)
	sess := client.SessionFromID("sess-7")
	var out, errOut bytes.Buffer

	handled, err := handleCommand(context.Background(), "/upload "+path, sess, client, &out, &errOut)
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v, want handled", handled, err)
	}
	if errOut.Len() != 0 {
		t.Fatalf("unexpected stderr: %q", errOut.String())
	}
	if gotFilename != "notes.txt" {
		t.Fatalf("uploaded filename=%q, want %q", gotFilename, "notes.txt")
	}
	if !strings.Contains(out.String(), "uploaded notes.txt (files/abc123)") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestHandleCommand_UploadWithoutPath(t *testing.T) {
	t.Parallel()

	client := voicelink.NewClient(voicelink.WithBaseURL("http://127.0.0.1:1"))
	sess := client.SessionFromID("sess-7")
	var out, errOut bytes.Buffer

	handled, err := handleCommand(context.Background(), "/upload", sess, client, &out, &errOut)
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v, want handled", handled, err)
	}
	if !strings.Contains(errOut.String(), "usage: /upload") {
		t.Fatalf("unexpected stderr: %q", errOut.String())
	}
}

func TestHandleCommand_HealthReportsBackendState(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(server.Close)

	client := voicelink.NewClient(
		voicelink.WithBaseURL(server.URL),
		voicelink.WithHTTPClient(server.Client()),
	)
	sess := client.SessionFromID("sess-7")
	var out, errOut bytes.Buffer

	handled, err := handleCommand(context.Background(), "/health", sess, client, &out, &errOut)
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v, want handled", handled, err)
	}
	if !strings.Contains(out.String(), "backend is healthy") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestHandleCommand_UnknownIsUnhandled(t *testing.T) {
	t.Parallel()

	client := voicelink.NewClient(voicelink.WithBaseURL("http://127.0.0.1:1"))
	sess := client.SessionFromID("sess-7")
	var out, errOut bytes.Buffer

	handled, err := handleCommand(context.Background(), "/dance", sess, client, &out, &errOut)
	if err != nil {
		t.Fatalf("handleCommand error: %v", err)
	}
	if handled {
		t.Fatalf("handled=true, want false for unknown command")
	}
}

func TestFormatMillis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 1, 14, 30, 5, 0, time.Local).UnixMilli()
	if got := formatMillis(ts); got != "14:30:05" {
		t.Fatalf("formatMillis=%q, want %q", got, "14:30:05")
	}
}
