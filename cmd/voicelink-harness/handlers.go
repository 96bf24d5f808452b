package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// detail is the backend's error envelope.
type detail struct {
	Detail string `json:"detail"`
}

type handlers struct {
	store     *store
	books     bookUploader
	signaling *signalingHandler
	publicURL string
	apiKey    string
	log       *slog.Logger
}

func (h *handlers) register(e *echo.Echo) {
	api := e.Group("/api", h.requireAPIKey)
	api.GET("/health", h.health)
	api.POST("/session", h.createSession)
	api.POST("/session/:id/upload-book", h.uploadBook)
	api.POST("/session/:id/clear-book", h.clearBook)
	api.POST("/session/:id/connect", h.connect)

	e.GET("/rtc/:room", h.signaling.serve)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// requireAPIKey enforces the optional bearer token. With no key configured
// the API is open, matching the default backend deployment.
func (h *handlers) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.apiKey == "" {
			return next(c)
		}
		auth := c.Request().Header.Get("Authorization")
		if strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) != h.apiKey {
			return c.JSON(http.StatusUnauthorized, detail{Detail: "Invalid API key"})
		}
		return next(c)
	}
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) createSession(c echo.Context) error {
	sess := h.store.createSession()
	h.log.Info("session created", "session_id", sess.ID)
	return c.JSON(http.StatusOK, map[string]string{"session_id": sess.ID})
}

func (h *handlers) uploadBook(c echo.Context) error {
	sessionID := c.Param("id")
	if _, ok := h.store.session(sessionID); !ok {
		return c.JSON(http.StatusNotFound, detail{Detail: "Session not found"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, detail{Detail: "A file form field is required"})
	}

	var mimeType string
	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".pdf":
		mimeType = "application/pdf"
	case ".txt":
		mimeType = "text/plain"
	default:
		return c.JSON(http.StatusBadRequest, detail{Detail: "Only PDF and TXT files are supported"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, detail{Detail: fmt.Sprintf("Failed to read upload: %v", err)})
	}
	defer file.Close()

	uri, err := h.books.upload(c.Request().Context(), fileHeader.Filename, mimeType, file)
	if err != nil {
		h.log.Error("book upload failed", "session_id", sessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, detail{Detail: fmt.Sprintf("Failed to store file: %v", err)})
	}

	if !h.store.setBook(sessionID, fileHeader.Filename, uri, mimeType) {
		return c.JSON(http.StatusNotFound, detail{Detail: "Session not found"})
	}
	uploadsTotal.Inc()
	h.log.Info("book uploaded", "session_id", sessionID, "filename", fileHeader.Filename, "uri", uri)

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"filename": fileHeader.Filename,
		"file_uri": uri,
	})
}

func (h *handlers) clearBook(c echo.Context) error {
	if !h.store.clearBook(c.Param("id")) {
		return c.JSON(http.StatusNotFound, detail{Detail: "Session not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (h *handlers) connect(c echo.Context) error {
	sessionID := c.Param("id")
	if _, ok := h.store.session(sessionID); !ok {
		return c.JSON(http.StatusNotFound, detail{Detail: "Session not found"})
	}

	var body struct {
		TTSModel string `json:"tts_model"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, detail{Detail: "Invalid request body"})
	}
	ttsModel := strings.TrimSpace(body.TTSModel)
	if ttsModel == "" {
		ttsModel = "mars-flash"
	}
	switch ttsModel {
	case "mars-flash", "mars-pro":
	default:
		return c.JSON(http.StatusBadRequest, detail{Detail: "tts_model must be mars-flash or mars-pro"})
	}

	r := h.store.mintRoom(sessionID, ttsModel)
	h.log.Info("room minted", "session_id", sessionID, "room_id", r.ID, "tts_model", ttsModel)

	return c.JSON(http.StatusOK, map[string]string{
		"room_url": h.publicURL + "/rtc/" + r.ID,
		"token":    r.Token,
	})
}
