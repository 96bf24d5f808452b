package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/genai"
)

const agentSystemPrompt = "You are a friendly reading companion on a voice call. " +
	"Answer in two or three short spoken sentences, no markdown. " +
	"When reference material is attached, ground your answers in it."

// bookUploader stores an uploaded book and returns the URI the agent will
// use to reference it.
type bookUploader interface {
	upload(ctx context.Context, filename, mimeType string, r io.Reader) (string, error)
}

// localBooks is the uploader used without Gemini credentials: files are
// accepted and acknowledged but the agent cannot ground on their content.
type localBooks struct{}

func (localBooks) upload(_ context.Context, filename, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "local/" + filename, nil
}

// geminiAgent generates assistant replies and stores books with the Gemini
// API, the same pipeline the production backend runs.
type geminiAgent struct {
	client *genai.Client
	model  string
}

func newGeminiAgent(ctx context.Context, apiKey, model string) (*geminiAgent, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &geminiAgent{client: client, model: model}, nil
}

func (g *geminiAgent) upload(ctx context.Context, filename, mimeType string, r io.Reader) (string, error) {
	file, err := g.client.Files.Upload(ctx, r, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: filename,
	})
	if err != nil {
		return "", fmt.Errorf("gemini file upload: %w", err)
	}
	return file.URI, nil
}

// reply implements replyFunc.
func (g *geminiAgent) reply(ctx context.Context, userLine string, book bookRef) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	var parts []*genai.Part
	if book.URI != "" && !strings.HasPrefix(book.URI, "local/") {
		parts = append(parts, genai.NewPartFromURI(book.URI, book.MIME))
	}
	parts = append(parts, genai.NewPartFromText(userLine))

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(agentSystemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.7),
			MaxOutputTokens:   160,
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
