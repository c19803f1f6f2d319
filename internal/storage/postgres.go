package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"consorcio_bot/internal/core"
)

// Lead is the persistent lead row, one per WhatsApp number.
type Lead struct {
	ID             uint   `gorm:"primaryKey"`
	WhatsAppNumber string `gorm:"column:whatsapp_number;size:20;uniqueIndex"`

	Nome         string `gorm:"size:255"`
	CPF          string `gorm:"column:cpf;size:14"`
	EstadoCivil  string `gorm:"size:50"`
	Naturalidade string `gorm:"size:100"`
	Endereco     string `gorm:"type:text"`
	Email        string `gorm:"size:255"`
	NomeMae      string `gorm:"size:255"`
	Renda        string `gorm:"size:50"`
	Profissao    string `gorm:"size:100"`

	CurrentQuestionID   string `gorm:"size:50"`
	CurrentQuestionText string `gorm:"type:text"`
	NextQuestionID      string `gorm:"size:50"`
	NextQuestionText    string `gorm:"type:text"`

	ConversationStage string `gorm:"size:50;default:start"`
	IsComplete        bool   `gorm:"default:false"`
	LeadScore         int    `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Lead) TableName() string { return "leads_consorcio" }

// ConversationRow is one durable conversation message. Append-only.
type ConversationRow struct {
	ID             uint   `gorm:"primaryKey"`
	WhatsAppNumber string `gorm:"column:whatsapp_number;size:20;index"`
	MessageType    string `gorm:"size:20"`
	Content        string `gorm:"type:text"`
	Timestamp      time.Time
}

func (ConversationRow) TableName() string { return "conversation_history" }

// PostgresStore implements core.LeadStore over PostgreSQL.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore connects to PostgreSQL and migrates the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Lead{}, &ConversationRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// FindLead returns the lead for the number, or (nil, nil) when absent.
func (p *PostgresStore) FindLead(ctx context.Context, whatsappNumber string) (*core.LeadRecord, error) {
	var lead Lead
	err := p.db.WithContext(ctx).
		Where("whatsapp_number = ?", whatsappNumber).
		First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query lead: %w", err)
	}
	return leadToRecord(&lead), nil
}

// UpsertLead creates or updates the lead row for the record's number.
func (p *PostgresStore) UpsertLead(ctx context.Context, record *core.LeadRecord) error {
	if record.WhatsAppNumber == "" {
		return fmt.Errorf("whatsapp number is required")
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lead Lead
		err := tx.Where("whatsapp_number = ?", record.WhatsAppNumber).First(&lead).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to query lead: %w", err)
		}

		lead.WhatsAppNumber = record.WhatsAppNumber
		assignLeadFields(&lead, record)

		if err := tx.Save(&lead).Error; err != nil {
			return fmt.Errorf("failed to save lead: %w", err)
		}
		return nil
	})
}

// ListRecentMessages returns up to limit most recent messages for the
// number, oldest first.
func (p *PostgresStore) ListRecentMessages(ctx context.Context, whatsappNumber string, limit int) ([]core.StoredMessage, error) {
	var rows []ConversationRow
	err := p.db.WithContext(ctx).
		Where("whatsapp_number = ?", whatsappNumber).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation history: %w", err)
	}

	// Query is newest-first; reverse back to chronological order.
	messages := make([]core.StoredMessage, len(rows))
	for i, row := range rows {
		messages[len(rows)-1-i] = core.StoredMessage{
			WhatsAppNumber: row.WhatsAppNumber,
			Role:           row.MessageType,
			Content:        row.Content,
			Timestamp:      row.Timestamp,
		}
	}
	return messages, nil
}

// InsertMessages writes the batch inside a single transaction.
func (p *PostgresStore) InsertMessages(ctx context.Context, batch []core.StoredMessage) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([]ConversationRow, len(batch))
	for i, msg := range batch {
		rows[i] = ConversationRow{
			WhatsAppNumber: msg.WhatsAppNumber,
			MessageType:    msg.Role,
			Content:        msg.Content,
			Timestamp:      msg.Timestamp,
		}
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert message batch: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func leadToRecord(lead *Lead) *core.LeadRecord {
	return &core.LeadRecord{
		WhatsAppNumber:      lead.WhatsAppNumber,
		Nome:                lead.Nome,
		CPF:                 lead.CPF,
		EstadoCivil:         lead.EstadoCivil,
		Naturalidade:        lead.Naturalidade,
		Endereco:            lead.Endereco,
		Email:               lead.Email,
		NomeMae:             lead.NomeMae,
		Renda:               lead.Renda,
		Profissao:           lead.Profissao,
		CurrentQuestionID:   lead.CurrentQuestionID,
		CurrentQuestionText: lead.CurrentQuestionText,
		NextQuestionID:      lead.NextQuestionID,
		NextQuestionText:    lead.NextQuestionText,
		ConversationStage:   lead.ConversationStage,
		IsComplete:          lead.IsComplete,
		LeadScore:           lead.LeadScore,
		CreatedAt:           lead.CreatedAt,
		UpdatedAt:           lead.UpdatedAt,
	}
}

func assignLeadFields(lead *Lead, record *core.LeadRecord) {
	lead.Nome = record.Nome
	lead.CPF = record.CPF
	lead.EstadoCivil = record.EstadoCivil
	lead.Naturalidade = record.Naturalidade
	lead.Endereco = record.Endereco
	lead.Email = record.Email
	lead.NomeMae = record.NomeMae
	lead.Renda = record.Renda
	lead.Profissao = record.Profissao
	lead.CurrentQuestionID = record.CurrentQuestionID
	lead.CurrentQuestionText = record.CurrentQuestionText
	lead.NextQuestionID = record.NextQuestionID
	lead.NextQuestionText = record.NextQuestionText
	lead.ConversationStage = record.ConversationStage
	lead.IsComplete = record.IsComplete
	lead.LeadScore = record.LeadScore
}
