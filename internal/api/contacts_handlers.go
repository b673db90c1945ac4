package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agendaweb/agenda/internal/auth"
	"github.com/agendaweb/agenda/internal/models"
	"github.com/agendaweb/agenda/internal/store"
)

func contactID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (api *Api) ListContactsHandler(w http.ResponseWriter, r *http.Request) {
	contacts, err := api.contacts.ListContacts(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (api *Api) GetContactHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(r)
	if !ok {
		api.writeError(w, r, store.ErrNotFound)
		return
	}

	contact, err := api.contacts.GetContact(r.Context(), id)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (api *Api) CreateContactHandler(w http.ResponseWriter, r *http.Request) {
	in, err := api.contactInput(w, r)
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	id, err := api.contacts.CreateContact(r.Context(), in)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.audit(r, "contact created", id)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (api *Api) UpdateContactHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(r)
	if !ok {
		api.writeError(w, r, store.ErrNotFound)
		return
	}
	in, err := api.contactInput(w, r)
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	if err := api.contacts.UpdateContact(r.Context(), id, in); err != nil {
		api.writeError(w, r, err)
		return
	}
	api.audit(r, "contact updated", id)
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (api *Api) DeleteContactHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(r)
	if !ok {
		api.writeError(w, r, store.ErrNotFound)
		return
	}

	if err := api.contacts.DeleteContact(r.Context(), id); err != nil {
		api.writeError(w, r, err)
		return
	}
	api.audit(r, "contact deleted", id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (api *Api) ListTagsHandler(w http.ResponseWriter, r *http.Request) {
	tags, err := api.contacts.ListTags(r.Context())
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (api *Api) CreateTagHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		api.writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		api.writeError(w, r, &auth.ValidationError{Field: "name", Reason: "is required"})
		return
	}

	tag, err := api.contacts.CreateTag(r.Context(), name)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (api *Api) contactInput(w http.ResponseWriter, r *http.Request) (models.ContactInput, error) {
	var in models.ContactInput
	if err := decodeJSON(w, r, &in); err != nil {
		return in, err
	}
	in.Normalize()
	if in.Name == "" {
		return in, &auth.ValidationError{Field: "name", Reason: "is required"}
	}
	return in, nil
}

func (api *Api) audit(r *http.Request, msg string, contactID int64) {
	userID, _ := auth.UserIDFromContext(r.Context())
	api.logger.InfoContext(r.Context(), msg, "user_id", userID, "contact_id", contactID)
}
