package flow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consorcio_bot/internal/core"
)

func testQuestions() *QuestionSet {
	return &QuestionSet{
		Start: "q1",
		Questions: map[string]Question{
			"q1": {FieldID: "nome", Question: "Qual é o seu nome?", Next: "q2"},
			"q2": {FieldID: "renda", Question: "Qual é a sua renda?", Next: "q3"},
			"q3": {FieldID: "profissao", Question: "Qual é a sua profissão?", Next: "end"},
		},
	}
}

func TestProcessorWalksFlow(t *testing.T) {
	p := NewProcessor(testQuestions())
	ctx := context.Background()
	snap := core.NewSessionSnapshot("5511999999999")

	// First contact opens with the first question.
	reply, err := p.Process(ctx, snap, "oi")
	require.NoError(t, err)
	assert.Equal(t, "Qual é o seu nome?", reply)
	assert.Equal(t, core.StageQualifying, snap.ConversationStage)
	assert.Equal(t, "q1", snap.CurrentQuestionID)
	assert.Equal(t, "q2", snap.NextQuestionID)

	// Each answer fills the current field and advances.
	reply, err = p.Process(ctx, snap, "Maria Silva")
	require.NoError(t, err)
	assert.Equal(t, "Qual é a sua renda?", reply)
	assert.Equal(t, "Maria Silva", snap.Nome)
	assert.Equal(t, "q2", snap.CurrentQuestionID)

	reply, err = p.Process(ctx, snap, "5")
	require.NoError(t, err)
	assert.Equal(t, "Qual é a sua profissão?", reply)
	assert.Equal(t, "5", snap.Renda)
	assert.Equal(t, "", snap.NextQuestionID)

	// The last answer completes the flow.
	reply, err = p.Process(ctx, snap, "engenheira")
	require.NoError(t, err)
	assert.Equal(t, completionMessage, reply)
	assert.Equal(t, "engenheira", snap.Profissao)
	assert.True(t, snap.IsComplete)
	assert.Equal(t, core.StageCompleted, snap.ConversationStage)
	assert.Equal(t, "", snap.CurrentQuestionID)

	// Further messages get the already-complete reply without mutation.
	reply, err = p.Process(ctx, snap, "obrigada")
	require.NoError(t, err)
	assert.Equal(t, alreadyCompleteMessage, reply)
	assert.Equal(t, "engenheira", snap.Profissao)
}

func TestProcessorIgnoresBlankAnswer(t *testing.T) {
	p := NewProcessor(testQuestions())
	ctx := context.Background()
	snap := core.NewSessionSnapshot("5511999999999")

	_, err := p.Process(ctx, snap, "oi")
	require.NoError(t, err)

	_, err = p.Process(ctx, snap, "   ")
	require.NoError(t, err)
	assert.Equal(t, "", snap.Nome)
	assert.Equal(t, "q2", snap.CurrentQuestionID)
}

func TestProcessorResumesMidFlow(t *testing.T) {
	p := NewProcessor(testQuestions())
	snap := core.NewSessionSnapshot("5511999999999")
	snap.ConversationStage = core.StageQualifying
	snap.CurrentQuestionID = "q2"

	reply, err := p.Process(context.Background(), snap, "3")
	require.NoError(t, err)
	assert.Equal(t, "Qual é a sua profissão?", reply)
	assert.Equal(t, "3", snap.Renda)
}

func TestLoadQuestions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "questions.yaml")
	content := `
start: q1
questions:
  q1:
    id: nome
    question: "Qual é o seu nome?"
    next: q2
  q2:
    id: renda
    question: "Qual é a sua renda?"
    next: end
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	set, err := LoadQuestions(path)
	require.NoError(t, err)
	assert.Equal(t, "q1", set.Start)
	assert.Equal(t, "Qual é o seu nome?", set.Get("q1"))
	assert.Equal(t, "renda", set.FieldID("q2"))
	assert.False(t, set.IsLast("q1"))
	assert.True(t, set.IsLast("q2"))

	text, id := set.NextQuestion("q1")
	assert.Equal(t, "q2", id)
	assert.Equal(t, "Qual é a sua renda?", text)

	text, id = set.NextQuestion("q2")
	assert.Equal(t, "", id)
	assert.Equal(t, "", text)
}

func TestLoadQuestionsValidation(t *testing.T) {
	dir := t.TempDir()

	dangling := filepath.Join(dir, "dangling.yaml")
	require.NoError(t, os.WriteFile(dangling, []byte(`
start: q1
questions:
  q1:
    id: nome
    question: "Qual é o seu nome?"
    next: q9
`), 0644))
	_, err := LoadQuestions(dangling)
	assert.Error(t, err)

	noStart := filepath.Join(dir, "nostart.yaml")
	require.NoError(t, os.WriteFile(noStart, []byte(`
questions:
  q1:
    id: nome
    question: "Qual é o seu nome?"
    next: end
`), 0644))
	_, err = LoadQuestions(noStart)
	assert.Error(t, err)
}
