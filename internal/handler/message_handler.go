package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
	"go.uber.org/zap"
)

// Reads are capped at the largest tier; tier limits are enforced by the service
const maxAttachmentUpload = 25 << 20

// MessageHandler serves threads, messages and attachments
type MessageHandler struct {
	messaging   *service.Messaging
	attachments *service.Attachments
}

func NewMessageHandler(messaging *service.Messaging, attachments *service.Attachments) *MessageHandler {
	return &MessageHandler{messaging: messaging, attachments: attachments}
}

type createThreadRequest struct {
	RecipientID uint   `json:"recipientId" validate:"required"`
	PropertyID  *uint  `json:"propertyId"`
	Content     string `json:"content" validate:"max=5000"`
}

type sendMessageRequest struct {
	Content       string `json:"content" validate:"max=5000"`
	AttachmentIDs []uint `json:"attachmentIds" validate:"max=10"`
}

// ListThreads handles GET /api/messages/threads
func (h *MessageHandler) ListThreads(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	threads, err := h.messaging.ListThreads(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"threads": threads})
}

// CreateThread handles POST /api/messages/threads
func (h *MessageHandler) CreateThread(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createThreadRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	thread, created, first, err := h.messaging.CreateThread(c.Request().Context(), userID, service.CreateThreadInput{
		RecipientID: req.RecipientID,
		PropertyID:  req.PropertyID,
		Content:     req.Content,
	})
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		logger.FromEcho(c).Info("Thread created", zap.Uint("thread_id", thread.ID))
	}
	if first != nil {
		prometheus.RecordMessageSent()
	}
	return c.JSON(status, echo.Map{"thread": thread, "created": created, "message": first})
}

// GetThread handles GET /api/messages/threads/:id
func (h *MessageHandler) GetThread(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	threadID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var before uint
	if raw := c.QueryParam("before"); raw != "" {
		if before, err = parseUint(raw, "before"); err != nil {
			return err
		}
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	detail, err := h.messaging.GetThread(c.Request().Context(), userID, threadID, before, n)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

// SendMessage handles POST /api/messages/threads/:id/messages
func (h *MessageHandler) SendMessage(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	threadID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req sendMessageRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Content) == "" {
		return apperr.BadRequest("content is required")
	}
	msg, err := h.messaging.SendMessage(c.Request().Context(), userID, threadID, req.Content, req.AttachmentIDs)
	if err != nil {
		return err
	}
	prometheus.RecordMessageSent()
	logger.FromEcho(c).Info("Message sent",
		zap.Uint("thread_id", threadID),
		zap.Uint("message_id", msg.ID),
		zap.Int("attachments", len(msg.Attachments)))
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": msg, "threadId": threadID})
}

// MarkRead handles POST /api/messages/threads/:id/read
func (h *MessageHandler) MarkRead(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	threadID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	updated, err := h.messaging.MarkRead(c.Request().Context(), userID, threadID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "updated": updated})
}

// UploadAttachment handles POST /api/messages/attachments
func (h *MessageHandler) UploadAttachment(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	file, err := formFile(c, "file", maxAttachmentUpload)
	if err != nil {
		return err
	}
	rawThread := c.FormValue("threadId")
	if rawThread == "" {
		return apperr.BadRequest("threadId is required")
	}
	threadID, err := parseUint(rawThread, "threadId")
	if err != nil {
		return err
	}

	view, err := h.attachments.Upload(c.Request().Context(), userID, threadID, file)
	if err != nil {
		log.Warn("Attachment rejected", zap.Uint("thread_id", threadID), zap.Error(err))
		return err
	}
	prometheus.RecordAttachmentOperation("upload")
	log.Info("Attachment uploaded", zap.Uint("attachment_id", view.ID), zap.Int64("size", view.Size))
	return c.JSON(http.StatusCreated, echo.Map{"attachment": view})
}

// GetAttachment handles GET /api/messages/attachments/:id
func (h *MessageHandler) GetAttachment(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	view, err := h.attachments.Get(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"attachment": view})
}

// DeleteAttachment handles DELETE /api/messages/attachments/:id
func (h *MessageHandler) DeleteAttachment(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.attachments.Delete(c.Request().Context(), userID, id); err != nil {
		return err
	}
	prometheus.RecordAttachmentOperation("delete")
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
