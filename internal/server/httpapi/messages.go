package httpapi

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
)

func (s *HTTPServer) messagePath(w http.ResponseWriter, r *http.Request) (capsuleID, messageID int64, ok bool) {
	capsuleID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return 0, 0, false
	}
	messageID, err = pathID(r, "mid")
	if err != nil {
		s.writeError(w, r, err)
		return 0, 0, false
	}
	return capsuleID, messageID, true
}

func (s *HTTPServer) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	capsuleID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in, cleanup, err := readMessageInput(w, r)
	defer cleanup()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	requester, _ := requesterFrom(r.Context())

	m, err := s.messages.Create(r.Context(), requester, capsuleID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(m))
}

func (s *HTTPServer) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	capsuleID, messageID, ok := s.messagePath(w, r)
	if !ok {
		return
	}
	requester, _ := requesterFrom(r.Context())

	m, err := s.messages.Get(r.Context(), requester, capsuleID, messageID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(m))
}

func (s *HTTPServer) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	capsuleID, messageID, ok := s.messagePath(w, r)
	if !ok {
		return
	}
	in, cleanup, err := readMessageInput(w, r)
	defer cleanup()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	requester, _ := requesterFrom(r.Context())

	m, err := s.messages.Update(r.Context(), requester, capsuleID, messageID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(m))
}

func (s *HTTPServer) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	capsuleID, messageID, ok := s.messagePath(w, r)
	if !ok {
		return
	}
	requester, _ := requesterFrom(r.Context())

	if err := s.messages.Delete(r.Context(), requester, capsuleID, messageID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeDetail(w, http.StatusOK, "Message deleted")
}

func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	capsuleID, messageID, ok := s.messagePath(w, r)
	if !ok {
		return
	}
	requester, _ := requesterFrom(r.Context())

	att, err := s.messages.Download(r.Context(), requester, capsuleID, messageID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer closeQuietly(att.Body)

	contentType := mime.TypeByExtension(filepath.Ext(att.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, att.Body); err != nil {
		s.logger.Warn(r.Context(), "download interrupted", "capsule_id", capsuleID, "message_id", messageID, "error", err)
	}
}
