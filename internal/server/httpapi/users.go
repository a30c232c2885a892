package httpapi

import (
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/services"
)

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.users.Register(r.Context(), services.NewUser{
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Phone:     req.Phone,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// handleLogin accepts the OAuth2 password form with the phone number in
// either the "phone" or the "username" field.
func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed form", common.ErrorValidation))
		return
	}
	phone := r.PostFormValue("phone")
	if phone == "" {
		phone = r.PostFormValue("username")
	}
	password := r.PostFormValue("password")
	if phone == "" || password == "" {
		s.writeError(w, r, fmt.Errorf("%w: phone and password are required", common.ErrorValidation))
		return
	}

	pair, err := s.users.Login(r.Context(), phone, password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		s.writeError(w, r, fmt.Errorf("%w: refresh_token is required", common.ErrorValidation))
		return
	}

	pair, err := s.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	requester, _ := requesterFrom(r.Context())
	u, err := s.users.Get(r.Context(), requester, requester.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	requester, _ := requesterFrom(r.Context())

	u, err := s.users.Get(r.Context(), requester, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req userUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	requester, _ := requesterFrom(r.Context())

	u, err := s.users.Update(r.Context(), requester, id, models.UserPatch{
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Phone:     req.Phone,
		Email:     req.Email,
		Password:  req.Password,
		IsAdmin:   req.IsAdmin,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	requester, _ := requesterFrom(r.Context())

	if err := s.users.Delete(r.Context(), requester, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeDetail(w, http.StatusOK, "User deleted")
}
