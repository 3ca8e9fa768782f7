package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/margot-dms/margot/internal/ledger"
	"go.uber.org/zap"
)

func (s *Server) handleListSenders(w http.ResponseWriter, r *http.Request) {
	senders, err := s.archive.ListSenders()
	if err != nil {
		s.logger.Error("list senders failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if senders == nil {
		senders = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"senders": senders})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	docs, err := s.archive.ListDocuments(sender)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if docs == nil {
		docs = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sender": sender, "documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	id := chi.URLParam(r, "id")
	doc, err := s.archive.Load(sender, id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetMarkdown(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	id := chi.URLParam(r, "id")
	md, err := s.archive.Markdown(sender, id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(md))
}

func (s *Server) handleListOriginals(w http.ResponseWriter, r *http.Request) {
	s.respondFileList(w, r, s.archive.OriginalScans, "originals")
}

func (s *Server) handleListPreviews(w http.ResponseWriter, r *http.Request) {
	s.respondFileList(w, r, s.archive.Previews, "previews")
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	s.respondFileList(w, r, s.archive.InteractionLogs, "logs")
}

func (s *Server) respondFileList(w http.ResponseWriter, r *http.Request, list func(sender, id string) ([]string, error), key string) {
	sender := chi.URLParam(r, "sender")
	id := chi.URLParam(r, "id")
	paths, err := list(sender, id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{key: names})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	id := chi.URLParam(r, "id")
	subfolder := chi.URLParam(r, "subfolder")
	filename := chi.URLParam(r, "filename")

	path, err := s.archive.FilePath(sender, id, subfolder, filename)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleListOpen(w http.ResponseWriter, r *http.Request) {
	open := s.engine.OpenDocuments()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"open": open})
}

func (s *Server) handleForceComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("force-complete request", zap.String("id", id))
	if err := s.engine.ForceComplete(id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "no open document with that id")
			return
		}
		s.logger.Error("force-complete failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "completed"})
}

type mergeRequest struct {
	SourceSender string `json:"source_sender"`
	SourceID     string `json:"source_id"`
}

func (s *Server) handleMergeExternal(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceSender == "" || req.SourceID == "" {
		s.respondError(w, http.StatusBadRequest, "source_sender and source_id are required")
		return
	}
	s.logger.Debug("merge request",
		zap.String("target", targetID),
		zap.String("source_sender", req.SourceSender),
		zap.String("source_id", req.SourceID),
	)
	if err := s.engine.MergeExternal(targetID, req.SourceSender, req.SourceID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "no open document with that id")
			return
		}
		s.logger.Error("merge failed", zap.String("target", targetID), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": targetID, "status": "merged"})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	archived, err := s.engine.FlushAll()
	if archived == nil {
		archived = []string{}
	}
	if err != nil {
		s.logger.Error("flush failed for some documents", zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"archived": archived,
			"error":    err.Error(),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"archived": archived})
}

func (s *Server) handleExportIndex(w http.ResponseWriter, r *http.Request) {
	raw, err := s.exporter.ArchiveIndexXLSX()
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="archive_index.xlsx"`)
	_, _ = w.Write(raw)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
