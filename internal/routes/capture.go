package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"channel-snapshot/internal/capture"
	"channel-snapshot/internal/telegram"
)

type Capturer interface {
	Capture(ctx context.Context, request capture.Request) capture.Result
}

type PostExtractor interface {
	ExtractChannelPosts(ctx context.Context, channelURL string) telegram.PostsResult
}

type ErrorResponse struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func Capture(capturer Capturer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := capturer.Capture(r.Context(), capture.Request{URL: r.URL.Query().Get("url")})
		if result.Err != nil {
			writeError(w, result.Err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Image)
	}
}

func ListPosts(extractor PostExtractor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := extractor.ExtractChannelPosts(r.Context(), r.URL.Query().Get("url"))
		if result.Err != nil {
			writeError(w, result.Err)
			return
		}

		b, err := json.Marshal(result.Posts)
		if err != nil {
			slog.Error(fmt.Sprintf("failed to marshal json: %s", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}

func statusFor(kind capture.ErrorKind) int {
	switch kind {
	case capture.InvalidURLError:
		return http.StatusBadRequest
	case capture.SessionAcquisitionError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, e *capture.Error) {
	slog.Warn(fmt.Sprintf("capture failed: %s", e))

	b, err := json.Marshal(ErrorResponse{Kind: string(e.Kind), Detail: e.Error()})
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(e.Kind))
	_, _ = w.Write(b)
}
