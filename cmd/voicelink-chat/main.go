// Command voicelink-chat is a terminal client for voicelink sessions: it
// connects to a running backend, streams microphone audio to the agent,
// plays agent speech, and renders status, transcript and agent log events
// as they arrive.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/halyard-ai/voicelink/pkg/session/protocol"
	voicelink "github.com/halyard-ai/voicelink/sdk"
)

const (
	defaultBaseURL        = "http://localhost:7860"
	defaultTTSModel       = "mars-flash"
	defaultConnectTimeout = 15 * time.Second
)

type chatConfig struct {
	BaseURL        string
	APIKey         string
	SessionID      string
	TTSModel       string
	ConnectTimeout time.Duration
	NoAudio        bool
	Verbose        bool
}

func parseChatConfig(args []string, getenv func(string) string) (chatConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := chatConfig{}
	fs := flag.NewFlagSet("voicelink-chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	envBase := strings.TrimSpace(getenv("VOICELINK_BASE_URL"))
	if envBase == "" {
		envBase = defaultBaseURL
	}
	fs.StringVar(&cfg.BaseURL, "base-url", envBase, "backend base URL (or VOICELINK_BASE_URL)")
	fs.StringVar(&cfg.APIKey, "api-key", strings.TrimSpace(getenv("VOICELINK_API_KEY")), "optional bearer token (or VOICELINK_API_KEY)")
	fs.StringVar(&cfg.SessionID, "session", "", "resume an existing session id instead of creating one")
	fs.StringVar(&cfg.TTSModel, "tts-model", defaultTTSModel, "voice model requested on connect (mars-flash or mars-pro)")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", defaultConnectTimeout, "abandon a connect attempt after this long")
	fs.BoolVar(&cfg.NoAudio, "no-audio", false, "run without microphone and speaker")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "also print partial transcripts and agent log lines")

	if err := fs.Parse(args); err != nil {
		return chatConfig{}, err
	}

	if err := validateChatConfig(cfg); err != nil {
		return chatConfig{}, err
	}
	return cfg, nil
}

func validateChatConfig(cfg chatConfig) error {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return errors.New("base-url must not be empty")
	}
	baseURL, err := url.Parse(base)
	if err != nil || strings.TrimSpace(baseURL.Scheme) == "" || strings.TrimSpace(baseURL.Host) == "" {
		return errors.New("base-url must be a valid absolute URL")
	}
	if baseURL.User != nil {
		return errors.New("base-url must not include credentials")
	}
	switch strings.TrimSpace(cfg.TTSModel) {
	case "mars-flash", "mars-pro":
	default:
		return errors.New("tts-model must be mars-flash or mars-pro")
	}
	if cfg.ConnectTimeout <= 0 {
		return errors.New("connect-timeout must be > 0")
	}
	return nil
}

func buildClientOptions(cfg chatConfig) []voicelink.ClientOption {
	opts := []voicelink.ClientOption{
		voicelink.WithBaseURL(cfg.BaseURL),
		voicelink.WithTTSModel(cfg.TTSModel),
		voicelink.WithConnectTimeout(cfg.ConnectTimeout),
	}
	if strings.TrimSpace(cfg.APIKey) != "" {
		opts = append(opts, voicelink.WithAPIKey(cfg.APIKey))
	}
	return opts
}

func runChat(ctx context.Context, cfg chatConfig, in io.Reader, out io.Writer, errOut io.Writer) error {
	if err := validateChatConfig(cfg); err != nil {
		return err
	}
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	opts := buildClientOptions(cfg)
	if !cfg.NoAudio {
		mic, speaker, cleanup, err := initAudio()
		if err != nil {
			return fmt.Errorf("audio setup (use --no-audio to skip): %w", err)
		}
		defer cleanup()
		opts = append(opts,
			voicelink.WithMicrophone(mic),
			voicelink.WithAudioSink(speaker),
		)
	}
	client := voicelink.NewClient(opts...)

	var sess *voicelink.Session
	if strings.TrimSpace(cfg.SessionID) != "" {
		sess = client.SessionFromID(strings.TrimSpace(cfg.SessionID))
		fmt.Fprintf(out, "Resuming session %s against %s\n", sess.ID(), cfg.BaseURL)
	} else {
		created, err := client.NewSession(ctx)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sess = created
		fmt.Fprintf(out, "Created session %s against %s\n", sess.ID(), cfg.BaseURL)
	}
	defer sess.Disconnect()

	registerRenderers(sess, cfg.Verbose, out)

	fmt.Fprintln(out, "Commands: /connect /disconnect /mute /status /transcript /logs /upload <file> /clear-book /health /exit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/exit", "/quit":
			sess.Disconnect()
			fmt.Fprintln(out, "bye")
			return nil
		}

		if handled, err := handleCommand(ctx, line, sess, client, out, errOut); err != nil {
			return err
		} else if !handled {
			fmt.Fprintln(out, "unknown command; try /connect /disconnect /mute /status /transcript /logs /upload /clear-book /health /exit")
		}
	}
}

// registerRenderers wires the session event callbacks to the terminal.
func registerRenderers(sess *voicelink.Session, verbose bool, out io.Writer) {
	sess.OnStatus(func(st protocol.PipelineStatus) {
		fmt.Fprintf(out, "[status] %s\n", st)
	})
	sess.OnTranscript(func(u voicelink.Utterance) {
		if u.Final {
			fmt.Fprintf(out, "[%s] %s\n", u.Role, u.Text)
		} else if verbose {
			fmt.Fprintf(out, "[%s partial] %s\n", u.Role, u.Text)
		}
	})
	sess.OnLog(func(entry voicelink.LogEntry) {
		if verbose {
			fmt.Fprintf(out, "[agent] %s\n", entry.Text)
		}
	})
}

func handleCommand(ctx context.Context, line string, sess *voicelink.Session, client *voicelink.Client, out io.Writer, errOut io.Writer) (bool, error) {
	switch {
	case line == "/connect":
		if err := sess.Connect(ctx); err != nil {
			fmt.Fprintf(errOut, "connect error: %v\n", err)
			return true, nil
		}
		fmt.Fprintln(out, "connected")
		return true, nil

	case line == "/disconnect":
		sess.Disconnect()
		fmt.Fprintln(out, "disconnected")
		return true, nil

	case line == "/mute":
		if !sess.IsConnected() {
			fmt.Fprintln(out, "not connected; mic stays unmuted")
			return true, nil
		}
		if sess.ToggleMute() {
			fmt.Fprintln(out, "mic muted")
		} else {
			fmt.Fprintln(out, "mic unmuted")
		}
		return true, nil

	case line == "/status":
		fmt.Fprintf(out, "session %s: %s, pipeline %s, muted %v\n",
			sess.ID(), sess.Status(), sess.PipelineStatus(), sess.IsMuted())
		return true, nil

	case line == "/transcript":
		entries := sess.Transcript()
		if len(entries) == 0 {
			fmt.Fprintln(out, "transcript is empty")
			return true, nil
		}
		for _, u := range entries {
			marker := ""
			if !u.Final {
				marker = " (partial)"
			}
			fmt.Fprintf(out, "%s [%s]%s %s\n", formatMillis(u.Timestamp), u.Role, marker, u.Text)
		}
		return true, nil

	case line == "/logs":
		entries := sess.Logs()
		if len(entries) == 0 {
			fmt.Fprintln(out, "no agent logs yet")
			return true, nil
		}
		for _, entry := range entries {
			fmt.Fprintf(out, "%s %s\n", formatMillis(entry.Timestamp), entry.Text)
		}
		return true, nil

	case strings.HasPrefix(line, "/upload"):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/upload"))
		if path == "" {
			fmt.Fprintln(errOut, "usage: /upload <file.pdf|file.txt>")
			return true, nil
		}
		if err := uploadBook(ctx, client, sess.ID(), path, out); err != nil {
			fmt.Fprintf(errOut, "upload error: %v\n", err)
		}
		return true, nil

	case line == "/clear-book":
		if err := client.Sessions.ClearBook(ctx, sess.ID()); err != nil {
			fmt.Fprintf(errOut, "clear-book error: %v\n", err)
			return true, nil
		}
		fmt.Fprintln(out, "book context cleared")
		return true, nil

	case line == "/health":
		if err := client.Sessions.Health(ctx); err != nil {
			fmt.Fprintf(errOut, "backend unhealthy: %v\n", err)
			return true, nil
		}
		fmt.Fprintln(out, "backend is healthy")
		return true, nil

	case line == "/help":
		fmt.Fprintln(out, "Commands: /connect /disconnect /mute /status /transcript /logs /upload <file> /clear-book /health /exit")
		return true, nil

	default:
		return false, nil
	}
}

func uploadBook(ctx context.Context, client *voicelink.Client, sessionID, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := client.Sessions.UploadBook(ctx, sessionID, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "uploaded %s (%s)\n", result.Filename, result.FileURI)
	return nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("15:04:05")
}

func main() {
	// A missing .env is normal for a CLI; flags and the environment win.
	_ = godotenv.Load()

	cfg, err := parseChatConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicelink-chat: %v\n", err)
		os.Exit(1)
	}

	if err := runChat(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "voicelink-chat: %v\n", err)
		os.Exit(1)
	}
}
