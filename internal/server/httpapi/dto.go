package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/server/filestore"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/services"
)

// Timestamp accepts RFC 3339 and offset-less date-times; the latter are
// taken as UTC.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: date must be a string", common.ErrorValidation)
	}
	s = strings.TrimSpace(s)
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v.UTC()
		return nil
	}
	for _, layout := range naiveLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("%w: invalid date %q", common.ErrorValidation, s)
}

type registerRequest struct {
	Firstname string  `json:"firstname"`
	Lastname  string  `json:"lastname"`
	Phone     string  `json:"phone"`
	Email     *string `json:"email"`
	Password  string  `json:"password"`
}

type userUpdateRequest struct {
	Firstname *string `json:"firstname"`
	Lastname  *string `json:"lastname"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	IsAdmin   *bool   `json:"is_admin"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Firstname string    `json:"firstname"`
	Lastname  string    `json:"lastname"`
	Phone     string    `json:"phone"`
	Email     *string   `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		Phone:     u.Phone,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func toTokenResponse(p *services.TokenPair) tokenResponse {
	return tokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: "bearer"}
}

type capsuleCreateRequest struct {
	Name           string    `json:"name"`
	RevealDate     Timestamp `json:"reveal_date"`
	NotifyOnCreate bool      `json:"notify_on_create"`
	RecipientPhone string    `json:"recipient_phone"`
}

type capsuleUpdateRequest struct {
	Name           *string    `json:"name"`
	RevealDate     *Timestamp `json:"reveal_date"`
	NotifyOnCreate *bool      `json:"notify_on_create"`
	RecipientPhone *string    `json:"recipient_phone"`
}

func (req capsuleUpdateRequest) patch() models.CapsulePatch {
	p := models.CapsulePatch{
		Name:           req.Name,
		NotifyOnCreate: req.NotifyOnCreate,
		RecipientPhone: req.RecipientPhone,
	}
	if req.RevealDate != nil {
		d := req.RevealDate.Time
		p.RevealDate = &d
	}
	return p
}

type capsuleResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	RevealDate     time.Time `json:"reveal_date"`
	NotifyOnCreate bool      `json:"notify_on_create"`
	RecipientPhone string    `json:"recipient_phone"`
	OwnerID        int64     `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type capsuleViewResponse struct {
	capsuleResponse
	Messages []messageResponse `json:"messages"`
}

func toCapsuleResponse(c *models.Capsule) capsuleResponse {
	return capsuleResponse{
		ID:             c.ID,
		Name:           c.Name,
		RevealDate:     c.RevealDate,
		NotifyOnCreate: c.NotifyOnCreate,
		RecipientPhone: c.RecipientPhone,
		OwnerID:        c.OwnerID,
		CreatedAt:      c.CreatedAt,
	}
}

func toCapsuleView(v *models.CapsuleView) capsuleViewResponse {
	resp := capsuleViewResponse{
		capsuleResponse: toCapsuleResponse(v.Capsule),
		Messages:        make([]messageResponse, 0, len(v.Messages)),
	}
	for _, m := range v.Messages {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	return resp
}

type messageResponse struct {
	ID        int64     `json:"id"`
	CapsuleID int64     `json:"capsule_id"`
	UserID    int64     `json:"user_id"`
	Text      *string   `json:"text"`
	Filename  *string   `json:"filename"`
	URL       *string   `json:"url"`
	Time      time.Time `json:"time"`
}

func toMessageResponse(m *models.Message) messageResponse {
	resp := messageResponse{
		ID:        m.ID,
		CapsuleID: m.CapsuleID,
		UserID:    m.CreatorID,
		Text:      m.Text,
		Time:      m.CreatedAt,
	}
	if m.Filename != nil {
		name := filestore.DisplayName(*m.Filename)
		url := fmt.Sprintf("/capsules/%d/messages/%d/file", m.CapsuleID, m.ID)
		resp.Filename = &name
		resp.URL = &url
	}
	return resp
}
