package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kazane-dev/kiroku/internal/models"
	"go.uber.org/zap"
)

const defaultSearchLimit = 10

// handleUpload streams a multipart request through the receiver and runs the
// received files through ingestion. The response is the ingestion summary;
// per-file failures appear in its errors instead of failing the request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	result, err := s.receiver.Receive(mr, userID)
	if err != nil {
		s.logger.Error("upload stream failed", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if result.Fields == nil {
		result.Fields = make(map[string]string)
	}
	if result.Fields["user_id"] == "" {
		result.Fields["user_id"] = userID
	}

	sess := s.arena.Get(result.SessionID)
	if sess != nil {
		for _, f := range result.Files {
			sess.SetStatus(f.ID, models.StatusProcessing, "")
		}
	}

	summary, err := s.ingestor.Ingest(r.Context(), result.SessionID, result.Files, result.Fields)
	if err != nil {
		s.logger.Error("ingestion failed", zap.String("session_id", result.SessionID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess != nil {
		for _, fr := range summary.Files {
			if fr.Status == models.StatusError {
				sess.SetStatus(fr.FileID, models.StatusError, fr.Error)
				continue
			}
			sess.SetStatus(fr.FileID, models.StatusCompleted, "")
		}
	}
	summary.Errors = append(result.Errors, summary.Errors...)
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleUploadProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess := s.arena.Get(sessionID)
	if sess == nil {
		s.respondError(w, http.StatusNotFound, "upload session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"completed": sess.Completed(),
		"files":     sess.Progress(),
		"errors":    sess.Errors(),
	})
}

type askRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
	TopK     int    `json:"top_k"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	s.logger.Debug("ask request", zap.String("user_id", req.UserID))

	answer, err := s.answerer.Ask(r.Context(), req.UserID, req.Question, req.TopK)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	userID := r.URL.Query().Get("user_id")
	limit := defaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.searcher.Search(r.Context(), userID, query, limit)
	if err != nil {
		s.logger.Error("keyword search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	n, err := s.ingestor.DeleteFile(r.Context(), fileID)
	if err != nil {
		s.logger.Error("delete file failed", zap.String("file_id", fileID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n == 0 {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"fileId":        fileID,
		"chunksDeleted": n,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
