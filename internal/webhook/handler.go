// Package webhook orchestrates one conversation turn per inbound message
// and exposes the thin HTTP entry point for the WhatsApp webhook.
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"consorcio_bot/internal/core"
	"consorcio_bot/internal/logger"
	"consorcio_bot/internal/scoring"
	"consorcio_bot/internal/session"
	"consorcio_bot/internal/writer"
)

// Reply sent when the conversation processor fails on a turn.
const processorFailureReply = "Desculpe, houve um problema técnico. Pode repetir sua mensagem?"

// Handler runs the per-turn pipeline: session retrieval, history writes,
// processing, snapshot update, lead upsert, outbound delivery and the
// write-behind enqueue.
type Handler struct {
	sessions    *session.Manager
	writer      *writer.Writer
	store       core.LeadStore
	processor   core.Processor
	notifier    core.Notifier
	verifyToken string
	turnTimeout time.Duration
}

// NewHandler wires the pipeline.
func NewHandler(sessions *session.Manager, w *writer.Writer, store core.LeadStore, processor core.Processor, notifier core.Notifier, verifyToken string) *Handler {
	return &Handler{
		sessions:    sessions,
		writer:      w,
		store:       store,
		processor:   processor,
		notifier:    notifier,
		verifyToken: verifyToken,
		turnTimeout: 60 * time.Second,
	}
}

// ProcessMessage handles one inbound message end to end and returns the
// reply that was sent.
func (h *Handler) ProcessMessage(ctx context.Context, from, message string) string {
	turnID := uuid.NewString()
	log := logger.GetLogger().With().Str("turn_id", turnID).Str("whatsapp_number", from).Logger()

	snap := h.sessions.GetOrCreateSession(ctx, from)
	h.sessions.AddMessageToHistory(ctx, from, core.RoleUser, message)

	reply, err := h.processor.Process(ctx, snap, message)
	if err != nil {
		log.Error().Err(err).Msg("Conversation processor failed")
		reply = processorFailureReply
	}

	h.sessions.AddMessageToHistory(ctx, from, core.RoleAssistant, reply)
	h.sessions.UpdateSession(ctx, snap)

	result := scoring.Score(snap)
	if err := h.store.UpsertLead(ctx, snap.ToLead(result.Score)); err != nil {
		log.Error().Err(err).Msg("Failed to upsert lead")
	}

	if err := h.notifier.Send(ctx, from, reply); err != nil {
		log.Error().Err(err).Msg("Failed to deliver outbound message")
	}

	// Durable message writes happen off the hot path.
	h.writer.QueueWrite(from, core.RoleUser, message)
	h.writer.QueueWrite(from, core.RoleAssistant, reply)

	log.Info().Str("stage", snap.ConversationStage).Int("lead_score", result.Score).Msg("Turn processed")
	return reply
}

// inboundEvent mirrors the relevant part of the webhook payload.
type inboundEvent struct {
	Message struct {
		From     string `json:"from"`
		Contents []struct {
			Text string `json:"text"`
		} `json:"contents"`
	} `json:"message"`
}

// HandleWebhook accepts an inbound event, acknowledges immediately and
// processes the message in the background.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var event inboundEvent
	if err := sonic.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	from := event.Message.From
	var text string
	if len(event.Message.Contents) > 0 {
		text = event.Message.Contents[0].Text
	}

	if from != "" && text != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.turnTimeout)
			defer cancel()
			h.ProcessMessage(ctx, from, text)
		}()
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"message":"Webhook processed successfully"}`)
}

// HandleVerify implements the Meta webhook verification handshake.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		if n, err := strconv.Atoi(challenge); err == nil {
			fmt.Fprint(w, n)
			return
		}
		fmt.Fprint(w, challenge)
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleStats reports session and queue statistics.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := struct {
		session.Stats
		QueueDepth    int   `json:"queue_depth"`
		DroppedWrites int64 `json:"dropped_writes"`
	}{
		Stats:         h.sessions.Stats(r.Context()),
		QueueDepth:    h.writer.Depth(),
		DroppedWrites: h.writer.Dropped(),
	}

	data, err := sonic.Marshal(stats)
	if err != nil {
		http.Error(w, "failed to marshal stats", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// Routes registers the webhook endpoints on a mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", h.HandleWebhook)
	mux.HandleFunc("GET /webhook", h.HandleVerify)
	mux.HandleFunc("GET /stats", h.HandleStats)
}
