package http

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/vkondratev/userbot-relay/internal/domain"
	pkgerrors "github.com/vkondratev/userbot-relay/pkg/errors"
)

// OperatorHandler handles operator-facing HTTP requests
type OperatorHandler struct {
	login     domain.LoginManager
	operators domain.OperatorUseCase
	registry  domain.ChatRegistry
	errMapper *pkgerrors.Mapper
	logger    zerolog.Logger
}

// NewOperatorHandler creates a new operator handler
func NewOperatorHandler(
	login domain.LoginManager,
	operators domain.OperatorUseCase,
	registry domain.ChatRegistry,
	errMapper *pkgerrors.Mapper,
	logger zerolog.Logger,
) *OperatorHandler {
	return &OperatorHandler{
		login:     login,
		operators: operators,
		registry:  registry,
		errMapper: errMapper,
		logger:    logger.With().Str("component", "operator_handler").Logger(),
	}
}

type loginRequest struct {
	OperatorID int64  `json:"operator_id"`
	Input      string `json:"input"`
}

type loginResponse struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Done    bool   `json:"done"`
}

type sendRequest struct {
	OperatorID int64  `json:"operator_id"`
	Peer       string `json:"peer"`
	Text       string `json:"text"`
}

type sendDepRequest struct {
	OperatorID int64  `json:"operator_id"`
	ChatID     int64  `json:"chat_id"`
	Text       string `json:"text"`
}

type joinRequest struct {
	OperatorID int64  `json:"operator_id"`
	Link       string `json:"link"`
}

type waitNotice struct {
	Reason  string  `json:"reason"`
	Seconds float64 `json:"seconds"`
}

type outcomeResponse struct {
	OK     bool         `json:"ok"`
	Detail string       `json:"detail"`
	Waits  []waitNotice `json:"waits,omitempty"`
}

type statusResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

type chatResponse struct {
	ChatID           int64  `json:"chat_id"`
	Title            string `json:"title"`
	DependencyChatID *int64 `json:"dependency_chat_id,omitempty"`
}

type dependencyRequest struct {
	DependencyChatID int64 `json:"dependency_chat_id"`
}

type addChatRequest struct {
	ChatID int64  `json:"chat_id"`
	Title  string `json:"title"`
}

type syncResponse struct {
	Stored int `json:"stored"`
}

// waitCollector records dispatcher wait announcements so the response can
// report how long the delivery spent suspended.
type waitCollector struct {
	mu    sync.Mutex
	waits []waitNotice
}

func (c *waitCollector) onWait(reason string, wait time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, waitNotice{Reason: reason, Seconds: wait.Seconds()})
}

// LoginStart begins (or restarts) the login flow for an operator
func (h *OperatorHandler) LoginStart(ctx *fasthttp.RequestCtx) {
	var req loginRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.OperatorID == 0 {
		h.writeError(ctx, pkgerrors.NewValidationError("operator_id is required"))
		return
	}

	reply, err := h.login.Begin(ctx, req.OperatorID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeLoginReply(ctx, reply)
}

// LoginInput feeds one operator input into the active login flow
func (h *OperatorHandler) LoginInput(ctx *fasthttp.RequestCtx) {
	var req loginRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.OperatorID == 0 {
		h.writeError(ctx, pkgerrors.NewValidationError("operator_id is required"))
		return
	}

	reply, err := h.login.Submit(ctx, req.OperatorID, req.Input)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeLoginReply(ctx, reply)
}

// LoginCancel abandons the active login flow, if any
func (h *OperatorHandler) LoginCancel(ctx *fasthttp.RequestCtx) {
	var req loginRequest
	if !h.decode(ctx, &req) {
		return
	}

	if err := h.login.Cancel(ctx, req.OperatorID); err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "cancelled"})
}

// Status returns the account behind the operator's session
func (h *OperatorHandler) Status(ctx *fasthttp.RequestCtx) {
	operatorID, ok := h.pathOperatorID(ctx)
	if !ok {
		return
	}

	me, err := h.operators.Status(ctx, operatorID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	h.writeJSON(ctx, fasthttp.StatusOK, statusResponse{
		ID:        me.ID,
		Username:  me.Username,
		FirstName: me.FirstName,
	})
}

// Logout deletes the operator's credential and closes the connection
func (h *OperatorHandler) Logout(ctx *fasthttp.RequestCtx) {
	operatorID, ok := h.pathOperatorID(ctx)
	if !ok {
		return
	}

	if err := h.operators.Logout(ctx, operatorID); err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "logged out"})
}

// Send delivers a message to a single peer
func (h *OperatorHandler) Send(ctx *fasthttp.RequestCtx) {
	var req sendRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.Peer == "" || req.Text == "" {
		h.writeError(ctx, pkgerrors.NewValidationError("peer and text are required"))
		return
	}

	collector := &waitCollector{}
	out, err := h.operators.Send(ctx, req.OperatorID, req.Peer, req.Text, collector.onWait)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeOutcome(ctx, out, collector)
}

// SendWithDependency delivers to a chat, preceded by its dependency chat
func (h *OperatorHandler) SendWithDependency(ctx *fasthttp.RequestCtx) {
	var req sendDepRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.ChatID == 0 || req.Text == "" {
		h.writeError(ctx, pkgerrors.NewValidationError("chat_id and text are required"))
		return
	}

	collector := &waitCollector{}
	out, err := h.operators.SendWithDependency(ctx, req.OperatorID, req.ChatID, req.Text, collector.onWait)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeOutcome(ctx, out, collector)
}

// Join joins a chat by link or username
func (h *OperatorHandler) Join(ctx *fasthttp.RequestCtx) {
	var req joinRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.Link == "" {
		h.writeError(ctx, pkgerrors.NewValidationError("link is required"))
		return
	}

	collector := &waitCollector{}
	out, err := h.operators.Join(ctx, req.OperatorID, req.Link, collector.onWait)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeOutcome(ctx, out, collector)
}

// ListChats returns all known chats with their dependency links
func (h *OperatorHandler) ListChats(ctx *fasthttp.RequestCtx) {
	chats, err := h.registry.ListChats(ctx)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	resp := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		resp = append(resp, chatResponse{
			ChatID:           c.ChatID,
			Title:            c.Title,
			DependencyChatID: c.DependencyChatID,
		})
	}
	h.writeJSON(ctx, fasthttp.StatusOK, resp)
}

// AddChat registers a chat in the registry
func (h *OperatorHandler) AddChat(ctx *fasthttp.RequestCtx) {
	var req addChatRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.ChatID == 0 || req.Title == "" {
		h.writeError(ctx, pkgerrors.NewValidationError("chat_id and title are required"))
		return
	}

	rec, err := h.registry.AddChat(ctx, req.ChatID, req.Title)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	h.writeJSON(ctx, fasthttp.StatusCreated, chatResponse{
		ChatID:           rec.ChatID,
		Title:            rec.Title,
		DependencyChatID: rec.DependencyChatID,
	})
}

// SetDependency links a chat to its dependency chat
func (h *OperatorHandler) SetDependency(ctx *fasthttp.RequestCtx) {
	chatID, ok := h.pathInt64(ctx, "chat_id")
	if !ok {
		return
	}

	var req dependencyRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.DependencyChatID == 0 {
		h.writeError(ctx, pkgerrors.NewValidationError("dependency_chat_id is required"))
		return
	}

	if err := h.registry.SetDependency(ctx, chatID, req.DependencyChatID); err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "linked"})
}

// SyncChats imports the operator's dialogs into the registry
func (h *OperatorHandler) SyncChats(ctx *fasthttp.RequestCtx) {
	operatorID, ok := h.pathOperatorID(ctx)
	if !ok {
		return
	}

	stored, err := h.operators.SyncChats(ctx, operatorID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, syncResponse{Stored: stored})
}

func (h *OperatorHandler) decode(ctx *fasthttp.RequestCtx, v interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		h.writeError(ctx, pkgerrors.NewValidationError("invalid JSON body"))
		return false
	}
	return true
}

func (h *OperatorHandler) pathOperatorID(ctx *fasthttp.RequestCtx) (int64, bool) {
	return h.pathInt64(ctx, "operator_id")
}

func (h *OperatorHandler) pathInt64(ctx *fasthttp.RequestCtx, name string) (int64, bool) {
	raw, _ := ctx.UserValue(name).(string)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		h.writeError(ctx, pkgerrors.NewValidationError("invalid "+name))
		return 0, false
	}
	return id, true
}

func (h *OperatorHandler) writeLoginReply(ctx *fasthttp.RequestCtx, reply *domain.LoginReply) {
	h.writeJSON(ctx, fasthttp.StatusOK, loginResponse{
		Stage:   reply.Stage.String(),
		Message: reply.Message,
		Done:    reply.Done,
	})
}

func (h *OperatorHandler) writeOutcome(ctx *fasthttp.RequestCtx, out domain.Outcome, collector *waitCollector) {
	h.writeJSON(ctx, fasthttp.StatusOK, outcomeResponse{
		OK:     out.OK,
		Detail: out.Detail,
		Waits:  collector.waits,
	})
}

func (h *OperatorHandler) writeError(ctx *fasthttp.RequestCtx, err error) {
	// ErrNotAuthorized from an operation means the stored session went
	// stale; the operator has to run the login flow again.
	if errors.Is(err, domain.ErrNotAuthorized) {
		h.logger.Info().Msg("stale session detected, operator must log in again")
	}

	status, message := h.errMapper.MapErrorToHTTP(err)
	h.writeJSON(ctx, status, map[string]string{"error": message})
}

func (h *OperatorHandler) writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
