package api

import (
	"time"

	"huozhong/cmd/identity"
	"huozhong/cmd/internal/admission"
)

type credentialRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type emailCodeRequest struct {
	Email string `json:"email"`
}

type teacherLoginRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type updateInfoRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Role  *string `json:"role"`
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type rateLimitResponse struct {
	IP       string            `json:"ip"`
	Client   admission.Status  `json:"client"`
	Endpoint *admission.Status `json:"endpoint,omitempty"`
}

func toUserResponse(u identity.Identity) userResponse {
	return userResponse{
		ID:    u.ID,
		Name:  u.Name,
		Role:  string(u.Role),
		Email: u.Email,
	}
}
