// internal/chat/routes.go

package chat

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes registers all chat routes under /api/v1/chat.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/v1/chat").Subrouter()
	api.Use(authMiddleware)

	// Conversation endpoints
	api.HandleFunc("/conversations", handler.GetConversations).Methods("GET")
	api.HandleFunc("/conversations/direct/{userId:[0-9]+}", handler.GetOrCreateDirectConversation).Methods("GET", "POST")
	api.HandleFunc("/conversations/{id:[0-9]+}", handler.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}", handler.UpdateConversation).Methods("PUT", "PATCH")
	api.HandleFunc("/conversations/{id:[0-9]+}", handler.DeleteConversation).Methods("DELETE")

	// Member view-state endpoints (caller's own row only)
	api.HandleFunc("/conversations/{id:[0-9]+}/pin", handler.SetPinned).Methods("PUT")
	api.HandleFunc("/conversations/{id:[0-9]+}/archive", handler.SetArchived).Methods("PUT")
	api.HandleFunc("/conversations/{id:[0-9]+}/mute", handler.SetMuted).Methods("PUT")
	api.HandleFunc("/conversations/{id:[0-9]+}/draft", handler.SaveDraft).Methods("PUT")

	// Message endpoints
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", handler.GetMessages).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}/read", handler.MarkRead).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}/unread", handler.GetUnreadCount).Methods("GET")
	api.HandleFunc("/messages", handler.SendMessage).Methods("POST")
	api.HandleFunc("/messages/{id:[0-9]+}", handler.GetMessage).Methods("GET")
	api.HandleFunc("/messages/{id:[0-9]+}", handler.EditMessage).Methods("PUT", "PATCH")
	api.HandleFunc("/messages/{id:[0-9]+}", handler.DeleteMessage).Methods("DELETE")
	api.HandleFunc("/messages/{id:[0-9]+}/recall", handler.RecallMessage).Methods("POST")
}
