package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/timecapsule/internal/server/services"
)

func (s *HTTPServer) handleCreateCapsule(w http.ResponseWriter, r *http.Request) {
	var req capsuleCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	requester, _ := requesterFrom(r.Context())

	c, err := s.capsules.Create(r.Context(), requester, services.NewCapsule{
		Name:           req.Name,
		RevealDate:     req.RevealDate.Time,
		RecipientPhone: req.RecipientPhone,
		NotifyOnCreate: req.NotifyOnCreate,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCapsuleResponse(c))
}

func (s *HTTPServer) handleGetCapsule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	requester, _ := requesterFrom(r.Context())

	view, err := s.capsules.Get(r.Context(), requester, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCapsuleView(view))
}

func (s *HTTPServer) handleUpdateCapsule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req capsuleUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	requester, _ := requesterFrom(r.Context())

	c, err := s.capsules.Update(r.Context(), requester, id, req.patch())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCapsuleResponse(c))
}

func (s *HTTPServer) handleDeleteCapsule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	requester, _ := requesterFrom(r.Context())

	if err := s.capsules.Delete(r.Context(), requester, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeDetail(w, http.StatusOK, "Capsule deleted")
}
