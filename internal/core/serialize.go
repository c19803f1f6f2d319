package core

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// MarshalSnapshot encodes the snapshot as the flat JSON mapping stored in
// the cache, stamping updated_at. All values are string-safe scalars;
// booleans stay booleans, timestamps are RFC3339 strings.
func MarshalSnapshot(snap *SessionSnapshot) ([]byte, error) {
	snap.UpdatedAt = time.Now().Format(time.RFC3339)
	data, err := sonic.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a cached snapshot.
func UnmarshalSnapshot(data []byte) (*SessionSnapshot, error) {
	var snap SessionSnapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return &snap, nil
}

// MarshalHistoryEntry encodes one recent-message list element.
func MarshalHistoryEntry(role, content string) ([]byte, error) {
	entry := HistoryEntry{
		Type:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	data, err := sonic.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history entry: %w", err)
	}
	return data, nil
}

// UnmarshalHistoryEntry decodes one recent-message list element.
func UnmarshalHistoryEntry(data []byte) (*HistoryEntry, error) {
	var entry HistoryEntry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
	}
	return &entry, nil
}

// SnapshotFromLead maps a persisted lead row onto a fresh session snapshot,
// preserving the conversation stage and completion flag.
func SnapshotFromLead(lead *LeadRecord) *SessionSnapshot {
	snap := &SessionSnapshot{
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
		UpdatedAt:           time.Now().Format(time.RFC3339),
	}
	if snap.ConversationStage == "" {
		snap.ConversationStage = StageStart
	}
	return snap
}

// ToLead maps the snapshot onto a lead row for upserting.
func (s *SessionSnapshot) ToLead(score int) *LeadRecord {
	return &LeadRecord{
		WhatsAppNumber:      s.WhatsAppNumber,
		Nome:                s.Nome,
		CPF:                 s.CPF,
		EstadoCivil:         s.EstadoCivil,
		Naturalidade:        s.Naturalidade,
		Endereco:            s.Endereco,
		Email:               s.Email,
		NomeMae:             s.NomeMae,
		Renda:               s.Renda,
		Profissao:           s.Profissao,
		CurrentQuestionID:   s.CurrentQuestionID,
		CurrentQuestionText: s.CurrentQuestionText,
		NextQuestionID:      s.NextQuestionID,
		NextQuestionText:    s.NextQuestionText,
		ConversationStage:   s.ConversationStage,
		IsComplete:          s.IsComplete,
		LeadScore:           score,
	}
}

// SetLeadField assigns one named lead attribute on the snapshot. Returns
// false for names that are not lead attributes.
func (s *SessionSnapshot) SetLeadField(name, value string) bool {
	switch name {
	case "nome":
		s.Nome = value
	case "cpf":
		s.CPF = value
	case "estado_civil":
		s.EstadoCivil = value
	case "naturalidade":
		s.Naturalidade = value
	case "endereco":
		s.Endereco = value
	case "email":
		s.Email = value
	case "nome_mae":
		s.NomeMae = value
	case "renda":
		s.Renda = value
	case "profissao":
		s.Profissao = value
	default:
		return false
	}
	return true
}

// LeadFieldNames lists the lead attributes collected during qualification,
// in the order they are asked.
func LeadFieldNames() []string {
	return []string{
		"nome", "cpf", "estado_civil", "naturalidade", "endereco",
		"email", "nome_mae", "renda", "profissao",
	}
}

// LeadField returns the value of one named lead attribute.
func (s *SessionSnapshot) LeadField(name string) string {
	switch name {
	case "nome":
		return s.Nome
	case "cpf":
		return s.CPF
	case "estado_civil":
		return s.EstadoCivil
	case "naturalidade":
		return s.Naturalidade
	case "endereco":
		return s.Endereco
	case "email":
		return s.Email
	case "nome_mae":
		return s.NomeMae
	case "renda":
		return s.Renda
	case "profissao":
		return s.Profissao
	}
	return ""
}
