package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/stockrag/internal/api"
	"github.com/cloo-solutions/stockrag/internal/service"
)

type ChatService interface {
	HandleMessage(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req service.ChatRequest
	if !api.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get("X-User-ID")
	}

	resp, err := h.svc.HandleMessage(r.Context(), req)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, resp)
}
