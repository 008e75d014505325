// internal/chat/handlers.go

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/loquiapp/loqui-backend/internal/common/utils"
)

type Handler struct {
	conversations *ConversationService
	messages      *MessageService
}

func NewHandler(conversations *ConversationService, messages *MessageService) *Handler {
	return &Handler{
		conversations: conversations,
		messages:      messages,
	}
}

// respondError maps the service error taxonomy onto HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		utils.ErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		utils.ErrorResponse(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrInvalidArgument):
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
		utils.ErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrUnavailable):
		utils.ErrorResponse(w, "store temporarily unavailable, retry later", http.StatusServiceUnavailable)
	default:
		utils.ErrorResponse(w, err.Error(), http.StatusInternalServerError)
	}
}

func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// GetConversations lists the caller's conversations; ?archived=true returns
// the archived split.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

	var (
		conversations []*Conversation
		err           error
	)
	if archived {
		conversations, err = h.conversations.ListArchived(r.Context(), userID, page, size)
	} else {
		conversations, err = h.conversations.ListConversations(r.Context(), userID, page, size)
	}
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, conversations, http.StatusOK)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	convID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	conversation, err := h.conversations.GetConversation(r.Context(), convID, userID)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, conversation, http.StatusOK)
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	convID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.conversations.UpdateConversation(r.Context(), convID, userID, &req); err != nil {
		respondError(w, err)
		return
	}

	utils.MessageResponse(w, "conversation updated", http.StatusOK)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	convID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	if err := h.conversations.DeleteConversation(r.Context(), convID, userID); err != nil {
		respondError(w, err)
		return
	}

	utils.MessageResponse(w, "conversation deleted", http.StatusOK)
}

// GetOrCreateDirectConversation resolves the private conversation with the
// target user, creating it if absent. Idempotent for racing callers.
func (h *Handler) GetOrCreateDirectConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	targetID, err := pathID(r, "userId")
	if err != nil {
		utils.ErrorResponse(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	conversation, err := h.conversations.GetOrCreatePrivateConversation(r.Context(), userID, targetID)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, conversation, http.StatusOK)
}

// Pin/archive/mute toggles update the caller's own member row only.
func (h *Handler) SetPinned(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.conversations.SetPinned)
}

func (h *Handler) SetArchived(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.conversations.SetArchived)
}

func (h *Handler) SetMuted(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.conversations.SetMuted)
}

func (h *Handler) setFlag(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, convID, userID int64, flag bool) error) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	convID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req MemberFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := apply(r.Context(), convID, userID, req.Enabled); err != nil {
		respondError(w, err)
		return
	}

	utils.MessageResponse(w, "updated", http.StatusOK)
}

func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	convID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.conversations.SaveDraft(r.Context(), convID, userID, req.Draft); err != nil {
		respondError(w, err)
		return
	}

	utils.MessageResponse(w, "draft saved", http.StatusOK)
}

// GetMessages pages conversation messages by id descending using a
// ?before=<message_id> cursor.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	convID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := h.messages.GetConversationMessages(r.Context(), convID, userID, before, limit)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, messages, http.StatusOK)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.messages.SendMessage(r.Context(), userID, &req)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, message, http.StatusCreated)
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	messageID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	message, err := h.messages.GetMessage(r.Context(), messageID, userID)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, message, http.StatusOK)
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	messageID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.messages.EditMessage(r.Context(), messageID, userID, req.Content)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, message, http.StatusOK)
}

func (h *Handler) RecallMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	messageID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	if err := h.messages.RecallMessage(r.Context(), messageID, userID, false); err != nil {
		respondError(w, err)
		return
	}

	utils.MessageResponse(w, "message recalled", http.StatusOK)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	messageID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	if err := h.messages.DeleteMessage(r.Context(), messageID, userID, false); err != nil {
		respondError(w, err)
		return
	}

	utils.MessageResponse(w, "message deleted", http.StatusOK)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	convID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	cursor, err := h.messages.MarkAsRead(r.Context(), convID, userID, req.UpToMessageID)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, ReadAckResponse{
		ConversationID:    convID,
		LastReadMessageID: cursor,
	}, http.StatusOK)
}

func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	convID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	count, err := h.messages.GetUnreadCount(r.Context(), convID, userID)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, UnreadCountResponse{
		ConversationID: convID,
		UnreadCount:    count,
	}, http.StatusOK)
}
