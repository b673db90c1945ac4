package api

import (
	"net/http"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// LoginHandler exchanges email and password for a session token.
func (api *Api) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		api.writeError(w, r, err)
		return
	}

	token, err := api.auth.Login(r.Context(), creds.Email, creds.Password)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ForgotPasswordHandler starts a password recovery. The answer is the same
// whether or not the email is registered.
func (api *Api) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		api.writeError(w, r, err)
		return
	}

	if err := api.resets.RequestReset(r.Context(), req.Email); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

// ResetPasswordHandler consumes a recovery token and sets the new password.
func (api *Api) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		api.writeError(w, r, err)
		return
	}

	if err := api.resets.ConfirmReset(r.Context(), req.Token, req.NewPassword); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}
