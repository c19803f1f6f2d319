package core

import (
	"context"
	"time"
)

// Conversation stage tags stored on the session snapshot.
const (
	StageStart      = "start"
	StageQualifying = "qualifying"
	StageCompleted  = "completed"
)

// Message role tags.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SessionSnapshot is the cached, most-recent image of one user's
// conversation state. The JSON tags define the cache representation under
// `session:{whatsapp_number}` and must not change: other consumers of the
// cache rely on this exact layout.
type SessionSnapshot struct {
	WhatsAppNumber      string `json:"whatsapp_number"`
	Nome                string `json:"nome"`
	CPF                 string `json:"cpf"`
	EstadoCivil         string `json:"estado_civil"`
	Naturalidade        string `json:"naturalidade"`
	Endereco            string `json:"endereco"`
	Email               string `json:"email"`
	NomeMae             string `json:"nome_mae"`
	Renda               string `json:"renda"`
	Profissao           string `json:"profissao"`
	CurrentQuestionID   string `json:"current_question_id"`
	CurrentQuestionText string `json:"current_question_text"`
	NextQuestionID      string `json:"next_question_id"`
	NextQuestionText    string `json:"next_question_text"`
	ConversationStage   string `json:"conversation_stage"`
	IsComplete          bool   `json:"is_complete"`
	UpdatedAt           string `json:"updated_at"` // RFC3339

	// History is rebuilt from the cached message list on every load and is
	// never part of the serialized snapshot.
	History string `json:"-"`
}

// NewSessionSnapshot returns a default snapshot for a user seen for the
// first time, also used as the fallback when the backing stores are down.
func NewSessionSnapshot(whatsappNumber string) *SessionSnapshot {
	return &SessionSnapshot{
		WhatsAppNumber:    whatsappNumber,
		ConversationStage: StageStart,
		UpdatedAt:         time.Now().Format(time.RFC3339),
	}
}

// HistoryEntry is one element of the cached recent-message list under
// `history:{whatsapp_number}`. The "type" key carries the role tag.
type HistoryEntry struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// LeadRecord is the durable per-user row in the persistent store. It holds
// the same scalar fields as the snapshot plus the numeric score.
type LeadRecord struct {
	WhatsAppNumber      string
	Nome                string
	CPF                 string
	EstadoCivil         string
	Naturalidade        string
	Endereco            string
	Email               string
	NomeMae             string
	Renda               string
	Profissao           string
	CurrentQuestionID   string
	CurrentQuestionText string
	NextQuestionID      string
	NextQuestionText    string
	ConversationStage   string
	IsComplete          bool
	LeadScore           int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// StoredMessage is one conversation turn pending (or already) durable
// persistence.
type StoredMessage struct {
	WhatsAppNumber string
	Role           string
	Content        string
	Timestamp      time.Time
}

// CacheStats reports cache-wide counters exposed through session stats.
type CacheStats struct {
	ActiveSessions  int    `json:"active_sessions"`
	ActiveHistories int    `json:"active_histories"`
	MemoryUsed      string `json:"memory_used"`
}

// CacheStore is the key-value store holding session snapshots and the
// bounded recent-message list per user.
type CacheStore interface {
	// GetSession returns the cached snapshot, or (nil, nil) on a miss.
	GetSession(ctx context.Context, whatsappNumber string) (*SessionSnapshot, error)
	SetSession(ctx context.Context, snap *SessionSnapshot) error
	// DeleteSession reports whether a cached snapshot actually existed.
	DeleteSession(ctx context.Context, whatsappNumber string) (bool, error)
	RefreshSessionTTL(ctx context.Context, whatsappNumber string) error
	// AppendHistory pushes a message to the front of the recent-message
	// list, trims it to the configured bound and refreshes the list TTL.
	AppendHistory(ctx context.Context, whatsappNumber, role, content string) error
	// History returns up to limit most recent messages, oldest first.
	History(ctx context.Context, whatsappNumber string, limit int) ([]HistoryEntry, error)
	Stats(ctx context.Context) (CacheStats, error)
}

// LeadStore is the authoritative persistent store for leads and
// conversation messages.
type LeadStore interface {
	// FindLead returns the lead row for the number, or (nil, nil) when the
	// user has never been persisted.
	FindLead(ctx context.Context, whatsappNumber string) (*LeadRecord, error)
	UpsertLead(ctx context.Context, lead *LeadRecord) error
	// ListRecentMessages returns up to limit most recent messages for the
	// user, oldest first.
	ListRecentMessages(ctx context.Context, whatsappNumber string, limit int) ([]StoredMessage, error)
	// InsertMessages writes the whole batch in a single transaction.
	InsertMessages(ctx context.Context, batch []StoredMessage) error
}

// Processor is the external conversation processor. Implementations may
// mutate the snapshot in place and return the reply to send.
type Processor interface {
	Process(ctx context.Context, snap *SessionSnapshot, message string) (string, error)
}

// Notifier delivers an outbound message to a recipient.
type Notifier interface {
	Send(ctx context.Context, to, text string) error
}
