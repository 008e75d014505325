// internal/contacts/handlers.go

package contacts

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/loquiapp/loqui-backend/internal/common/utils"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	targetID, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.service.Block(r.Context(), userID, targetID); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	utils.MessageResponse(w, "blocked", http.StatusOK)
}

func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	targetID, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.service.Unblock(r.Context(), userID, targetID); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	utils.MessageResponse(w, "unblocked", http.StatusOK)
}

func (h *Handler) GetBlockedUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ids, err := h.service.ListBlocked(r.Context(), userID)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.SuccessResponse(w, ids, http.StatusOK)
}

// RegisterRoutes registers the contacts routes under /api/v1/contacts.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/v1/contacts").Subrouter()
	api.Use(authMiddleware)

	api.HandleFunc("/block/{userId:[0-9]+}", handler.BlockUser).Methods("POST")
	api.HandleFunc("/unblock/{userId:[0-9]+}", handler.UnblockUser).Methods("POST")
	api.HandleFunc("/blocked", handler.GetBlockedUsers).Methods("GET")
}
