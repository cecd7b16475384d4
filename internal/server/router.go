package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voyagerlabs/raidtrain/internal/platform"
	"github.com/voyagerlabs/raidtrain/internal/train"
)

const requestIDHeader = "X-Request-Id"

var errMissingTrainService = errors.New("train service dependency required")

// Dependencies lists the collaborators the HTTP layer exposes.
type Dependencies struct {
	TrainService *train.Service
	Logger       *zap.Logger
}

// NewHTTPHandler wires the coordinator behind the versioned HTTP surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TrainService == nil {
		return nil, errMissingTrainService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		trains: deps.TrainService,
		logger: logger,
	}

	router.GET("/healthz", handler.handleHealth)

	v1 := router.Group("/v1")
	v1.POST("/trains", handler.handleStartTrain)
	v1.GET("/trains/:trainID/notices", handler.handleNoticeStream)
	v1.POST("/reactions", handler.handleReaction)
	v1.POST("/notifications", handler.handleNotification)

	channels := v1.Group("/channels/:channelID")
	channels.POST("/advance", handler.handleAdvance)
	channels.POST("/join", handler.handleJoin)
	channels.POST("/leave", handler.handleLeave)
	channels.POST("/announce", handler.handleAnnounce)

	return router, nil
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

type httpHandler struct {
	trains *train.Service
	logger *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type startTrainRequestPayload struct {
	GuildID         int64 `json:"guild_id"`
	ReportChannelID int64 `json:"report_channel_id"`
	InitiatorID     int64 `json:"initiator_id"`
}

type startTrainResponsePayload struct {
	TrainID          int64 `json:"train_id"`
	ChannelID        int64 `json:"channel_id"`
	SummaryMessageID int64 `json:"summary_message_id"`
}

func (h *httpHandler) handleStartTrain(c *gin.Context) {
	var request startTrainRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		request.GuildID == 0 || request.ReportChannelID == 0 || request.InitiatorID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	started, err := h.trains.Start(c.Request.Context(), request.GuildID, request.ReportChannelID, request.InitiatorID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, startTrainResponsePayload{
		TrainID:          started.ID,
		ChannelID:        started.ChannelID,
		SummaryMessageID: started.SummaryMessageID,
	})
}

func (h *httpHandler) handleAdvance(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	if err := h.trains.Advance(c.Request.Context(), channelID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "advanced"})
}

type joinRequestPayload struct {
	MemberID int64 `json:"member_id"`
	Total    int   `json:"total"`
	Counts   []int `json:"counts"`
}

func (h *httpHandler) handleJoin(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	var request joinRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.MemberID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.trains.Join(c.Request.Context(), channelID, request.MemberID, request.Total, request.Counts); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "joined"})
}

type leaveRequestPayload struct {
	MemberID int64 `json:"member_id"`
}

func (h *httpHandler) handleLeave(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	var request leaveRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.MemberID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.trains.Leave(c.Request.Context(), channelID, request.MemberID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

type announceRequestPayload struct {
	EventID int64 `json:"event_id"`
}

func (h *httpHandler) handleAnnounce(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	var request announceRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.EventID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.trains.AnnounceEvent(c.Request.Context(), channelID, request.EventID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "announced"})
}

type reactionRequestPayload struct {
	ChannelID int64  `json:"channel_id"`
	MessageID int64  `json:"message_id"`
	MemberID  int64  `json:"member_id"`
	Symbol    string `json:"symbol"`
}

func (h *httpHandler) handleReaction(c *gin.Context) {
	var request reactionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		request.ChannelID == 0 || request.MessageID == 0 || request.MemberID == 0 || request.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	ref := platform.MessageRef{ChannelID: request.ChannelID, MessageID: request.MessageID}
	if err := h.trains.HandleReaction(c.Request.Context(), ref, request.MemberID, request.Symbol); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

type notificationRequestPayload struct {
	Payload string `json:"payload"`
}

func (h *httpHandler) handleNotification(c *gin.Context) {
	var request notificationRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Payload == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.trains.HandleNotice(c.Request.Context(), request.Payload); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

const noticeHeartbeatInterval = 25 * time.Second

// handleNoticeStream serves the train's RSVP notices over server-sent events
// until the client disconnects.
func (h *httpHandler) handleNoticeStream(c *gin.Context) {
	trainID, ok := pathID(c, "trainID")
	if !ok {
		return
	}
	if _, loaded := h.trains.Registry().ByID(trainID); !loaded {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_train"})
		return
	}

	stream, cleanup := h.trains.Notifier().Subscribe(c.Request.Context(), trainID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(noticeHeartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case notice, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent("rsvp", gin.H{
				"train_id":  notice.TrainID,
				"member_id": notice.MemberID,
				"status":    notice.Status,
				"time_s":    notice.Timestamp.UTC().Unix(),
			})
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().UTC().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + name})
		return 0, false
	}
	return value, true
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, train.ErrUnknownTrain):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_train"})
		return
	case errors.Is(err, train.ErrNoCandidateEvents):
		c.JSON(http.StatusConflict, gin.H{"error": "no_candidate_events"})
		return
	}

	var serviceErr *train.ServiceError
	if errors.As(err, &serviceErr) {
		if serviceErr.Code() == "train.join.invalid_party" || serviceErr.Code() == "train.rsvp.malformed_payload" {
			c.JSON(http.StatusBadRequest, gin.H{"error": serviceErr.Code()})
			return
		}
		h.logger.Error("train operation failed", zap.String("code", serviceErr.Code()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErr.Code()})
		return
	}

	h.logger.Error("train operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
