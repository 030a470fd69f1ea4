package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"mimitomo/internal/domain"
	"mimitomo/internal/usecase"
)

type handlers struct {
	Services
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, h.Log, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (h *handlers) changed(userID string, resource string) {
	if h.Events != nil {
		h.Events.RecordsChanged(userID, resource)
	}
}

// health GET /api/health
func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.Log, http.StatusOK, map[string]string{"status": "ok"})
}

type userResponse struct {
	User   domain.User            `json:"user"`
	Groups []usecase.ProfileGroup `json:"groups"`
}

// getUser GET /api/users/{userId}
func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Profiles.Load(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	writeJSON(w, h.Log, http.StatusOK, userResponse{User: user, Groups: usecase.GroupProfileItems(user.ProfileItems)})
}

// updateUser PUT /api/users/{userId}
func (h *handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	var req struct {
		DisplayName string        `json:"display_name"`
		Gender      domain.Gender `json:"gender"`
		DOB         string        `json:"dob"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.Profiles.UpdateBasic(r.Context(), domain.User{
		ID:          userID,
		DisplayName: req.DisplayName,
		Gender:      req.Gender,
		DOB:         req.DOB,
	})
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.changed(userID, "users")
	writeJSON(w, h.Log, http.StatusOK, user)
}

type profileItemRequest struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Details  string `json:"details"`
}

// createProfileItem POST /api/users/{userId}/profile-items
func (h *handlers) createProfileItem(w http.ResponseWriter, r *http.Request) {
	h.saveProfileItem(w, r, "", http.StatusCreated)
}

// updateProfileItem PUT /api/users/{userId}/profile-items/{itemId}
func (h *handlers) updateProfileItem(w http.ResponseWriter, r *http.Request) {
	h.saveProfileItem(w, r, mux.Vars(r)["itemId"], http.StatusOK)
}

func (h *handlers) saveProfileItem(w http.ResponseWriter, r *http.Request, id string, status int) {
	userID := mux.Vars(r)["userId"]
	var req profileItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.Profiles.SaveItem(r.Context(), userID, domain.ProfileItem{
		ID:       id,
		Category: domain.ProfileCategory(req.Category),
		Name:     req.Name,
		Details:  req.Details,
	})
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.changed(userID, "profile_items")
	writeJSON(w, h.Log, status, item)
}

// deleteProfileItem DELETE /api/users/{userId}/profile-items/{itemId}
func (h *handlers) deleteProfileItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Profiles.DeleteItem(r.Context(), vars["userId"], vars["itemId"]); err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.changed(vars["userId"], "profile_items")
	w.WriteHeader(http.StatusNoContent)
}

// listReminders GET /api/users/{userId}/reminders
func (h *handlers) listReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.Reminders.List(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	writeJSON(w, h.Log, http.StatusOK, map[string]any{"reminders": reminders, "count": len(reminders)})
}

// createReminder POST /api/users/{userId}/reminders
//
// A body with text runs extraction; otherwise title and time are saved as
// given.
func (h *handlers) createReminder(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	var req struct {
		Title string `json:"title"`
		Time  string `json:"time"`
		Text  string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	var (
		reminder domain.Reminder
		err      error
	)
	if req.Text != "" {
		reminder, err = h.Reminders.AddFromSpeech(r.Context(), userID, req.Text)
	} else {
		reminder, err = h.Reminders.Add(r.Context(), userID, req.Title, req.Time)
	}
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.changed(userID, "reminders")
	writeJSON(w, h.Log, http.StatusCreated, reminder)
}

// toggleReminder PATCH /api/users/{userId}/reminders/{reminderId}/toggle
func (h *handlers) toggleReminder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reminder, err := h.Reminders.Toggle(r.Context(), vars["userId"], vars["reminderId"])
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.changed(vars["userId"], "reminders")
	writeJSON(w, h.Log, http.StatusOK, reminder)
}

// deleteReminder DELETE /api/users/{userId}/reminders/{reminderId}
func (h *handlers) deleteReminder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Reminders.Delete(r.Context(), vars["userId"], vars["reminderId"]); err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.changed(vars["userId"], "reminders")
	w.WriteHeader(http.StatusNoContent)
}

// listMemories GET /api/users/{userId}/memories
func (h *handlers) listMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := h.Memories.List(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	writeJSON(w, h.Log, http.StatusOK, map[string]any{"memories": memories, "count": len(memories)})
}

// uploadMemory POST /api/users/{userId}/memories
//
// Multipart form with an "image" file and optional "caption" and
// "uploaded_by" fields.
func (h *handlers) uploadMemory(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.Log, http.StatusRequestEntityTooLarge, "写真が大きすぎます。", err.Error())
			return
		}
		writeBadRequest(w, h.Log, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeBadRequest(w, h.Log, "image is required")
		return
	}
	defer file.Close()

	memory, err := h.Memories.Upload(r.Context(), userID, usecase.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Caption:     r.FormValue("caption"),
		UploadedBy:  r.FormValue("uploaded_by"),
	})
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.changed(userID, "memories")
	writeJSON(w, h.Log, http.StatusCreated, memory)
}

// updateMemory PATCH /api/users/{userId}/memories/{memoryId}
func (h *handlers) updateMemory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		Caption string `json:"caption"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	memory, err := h.Memories.UpdateCaption(r.Context(), vars["userId"], vars["memoryId"], req.Caption)
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.changed(vars["userId"], "memories")
	writeJSON(w, h.Log, http.StatusOK, memory)
}

// deleteMemory DELETE /api/users/{userId}/memories/{memoryId}
func (h *handlers) deleteMemory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Memories.Delete(r.Context(), vars["userId"], vars["memoryId"]); err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.changed(vars["userId"], "memories")
	w.WriteHeader(http.StatusNoContent)
}

// listMessages GET /api/users/{userId}/messages
func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.Conversation.History(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	writeJSON(w, h.Log, http.StatusOK, map[string]any{"messages": messages, "count": len(messages)})
}

// sendMessage POST /api/users/{userId}/messages
//
// Typed input shares the chat screen's busy flag with dictation. A failed
// reply still returns the saved user message with a local error reply.
func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	var req struct {
		Text string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	var exchange usecase.Exchange
	send := func() error {
		var err error
		exchange, err = h.Conversation.Send(r.Context(), userID, req.Text)
		return err
	}
	var err error
	if h.Shell != nil {
		err = h.Shell.RunBusy(usecase.ScreenChat, send)
	} else {
		err = send()
	}
	if exchange.User.ID != "" {
		h.changed(userID, "messages")
	}
	if err != nil {
		var data any
		if exchange.User.ID != "" {
			data = exchange
		}
		writeServiceError(w, h.Log, err, data)
		return
	}
	writeJSON(w, h.Log, http.StatusCreated, exchange)
}

// screenStatus GET /api/screens/{screen}
func (h *handlers) screenStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Shell.Status(usecase.ScreenName(mux.Vars(r)["screen"]))
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	writeJSON(w, h.Log, http.StatusOK, status)
}

// screenAction POST /api/screens/{screen}/{enter|leave|start|stop}
func (h *handlers) screenAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := usecase.ScreenName(vars["screen"])

	var err error
	switch vars["action"] {
	case "enter":
		_, err = h.Shell.Enter(name)
	case "leave":
		err = h.Shell.Leave(name)
	case "start":
		err = h.Shell.Start(name)
	case "stop":
		err = h.Shell.Stop(name)
	}
	if err != nil {
		writeServiceError(w, h.Log, err, nil)
		return
	}
	h.screenStatus(w, r)
}

type speakerState struct {
	Enabled *bool `json:"enabled"`
}

// getSpeaker GET /api/speaker
func (h *handlers) getSpeaker(w http.ResponseWriter, _ *http.Request) {
	enabled := h.Voice.Enabled()
	writeJSON(w, h.Log, http.StatusOK, speakerState{Enabled: &enabled})
}

// setSpeaker PUT /api/speaker
func (h *handlers) setSpeaker(w http.ResponseWriter, r *http.Request) {
	var req speakerState
	if !h.decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, h.Log, "enabled is required")
		return
	}
	h.Voice.SetEnabled(*req.Enabled)
	h.getSpeaker(w, r)
}
