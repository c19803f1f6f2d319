package core

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSnapshotCacheLayout(t *testing.T) {
	snap := &SessionSnapshot{
		WhatsAppNumber:    "5511999999999",
		Nome:              "Maria Silva",
		Renda:             "3",
		ConversationStage: StageQualifying,
		IsComplete:        true,
	}

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	// The cache representation is a flat mapping with the exact key names
	// other consumers rely on.
	var raw map[string]any
	require.NoError(t, sonic.Unmarshal(data, &raw))

	for _, key := range []string{
		"whatsapp_number", "nome", "cpf", "estado_civil", "naturalidade",
		"endereco", "email", "nome_mae", "renda", "profissao",
		"current_question_id", "current_question_text",
		"next_question_id", "next_question_text",
		"conversation_stage", "is_complete", "updated_at",
	} {
		_, ok := raw[key]
		assert.True(t, ok, "missing cache key %q", key)
	}

	// History text is contextual only and never serialized.
	_, ok := raw["history"]
	assert.False(t, ok)

	// Booleans stay booleans, timestamps are RFC3339 strings.
	assert.Equal(t, true, raw["is_complete"])
	_, err = time.Parse(time.RFC3339, raw["updated_at"].(string))
	assert.NoError(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := &SessionSnapshot{
		WhatsAppNumber:      "5511999999999",
		Nome:                "Maria Silva",
		CPF:                 "123.456.789-00",
		EstadoCivil:         "casada",
		Renda:               "4",
		CurrentQuestionID:   "q5",
		CurrentQuestionText: "Qual é o seu endereço?",
		ConversationStage:   StageQualifying,
		IsComplete:          false,
	}

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	got, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap.WhatsAppNumber, got.WhatsAppNumber)
	assert.Equal(t, snap.Nome, got.Nome)
	assert.Equal(t, snap.CPF, got.CPF)
	assert.Equal(t, snap.EstadoCivil, got.EstadoCivil)
	assert.Equal(t, snap.Renda, got.Renda)
	assert.Equal(t, snap.CurrentQuestionID, got.CurrentQuestionID)
	assert.Equal(t, snap.CurrentQuestionText, got.CurrentQuestionText)
	assert.Equal(t, snap.ConversationStage, got.ConversationStage)
	assert.Equal(t, snap.IsComplete, got.IsComplete)
}

func TestUnmarshalSnapshotRejectsCorruptData(t *testing.T) {
	_, err := UnmarshalSnapshot([]byte("{not json"))
	assert.Error(t, err)
}

func TestHistoryEntryLayout(t *testing.T) {
	data, err := MarshalHistoryEntry(RoleAssistant, "olá!")
	require.NoError(t, err)

	var raw map[string]string
	require.NoError(t, sonic.Unmarshal(data, &raw))
	assert.Equal(t, RoleAssistant, raw["type"])
	assert.Equal(t, "olá!", raw["content"])
	_, err = time.Parse(time.RFC3339, raw["timestamp"])
	assert.NoError(t, err)
}

func TestSnapshotFromLead(t *testing.T) {
	lead := &LeadRecord{
		WhatsAppNumber:    "5511999999999",
		Nome:              "Maria Silva",
		Profissao:         "engenheira",
		ConversationStage: StageCompleted,
		IsComplete:        true,
	}

	snap := SnapshotFromLead(lead)
	assert.Equal(t, lead.WhatsAppNumber, snap.WhatsAppNumber)
	assert.Equal(t, lead.Nome, snap.Nome)
	assert.Equal(t, lead.Profissao, snap.Profissao)
	assert.Equal(t, StageCompleted, snap.ConversationStage)
	assert.True(t, snap.IsComplete)

	// Rows migrated before stages existed default to the start stage.
	snap = SnapshotFromLead(&LeadRecord{WhatsAppNumber: "5511000000000"})
	assert.Equal(t, StageStart, snap.ConversationStage)
}

func TestToLead(t *testing.T) {
	snap := &SessionSnapshot{
		WhatsAppNumber:    "5511999999999",
		Nome:              "Maria Silva",
		Renda:             "5",
		ConversationStage: StageQualifying,
	}

	lead := snap.ToLead(72)
	assert.Equal(t, snap.WhatsAppNumber, lead.WhatsAppNumber)
	assert.Equal(t, snap.Nome, lead.Nome)
	assert.Equal(t, snap.Renda, lead.Renda)
	assert.Equal(t, 72, lead.LeadScore)
}

func TestSetLeadField(t *testing.T) {
	snap := NewSessionSnapshot("5511999999999")

	for i, name := range LeadFieldNames() {
		value := "value-" + name
		require.True(t, snap.SetLeadField(name, value), "field %d (%s)", i, name)
		assert.Equal(t, value, snap.LeadField(name))
	}

	assert.False(t, snap.SetLeadField("whatsapp_number", "nope"))
	assert.False(t, snap.SetLeadField("unknown", "nope"))
}
