package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"consorcio_bot/internal/core"
)

func fullSnapshot() *core.SessionSnapshot {
	snap := core.NewSessionSnapshot("5511999999999")
	snap.Nome = "Maria Silva"
	snap.CPF = "123.456.789-00"
	snap.EstadoCivil = "casado"
	snap.Naturalidade = "São Paulo"
	snap.Endereco = "Rua das Flores, 100"
	snap.Email = "maria@example.com"
	snap.NomeMae = "Ana Silva"
	snap.Renda = "5"
	snap.Profissao = "professora"
	return snap
}

func TestScorePremiumLead(t *testing.T) {
	// Top income band, high stability profession, married, all fields
	// filled: 40 + 25 + 20 + 15 = 100.
	result := Score(fullSnapshot())

	assert.Equal(t, 100, result.Score)
	assert.Equal(t, CategoryPremium, result.Category)
	assert.Equal(t, float64(100), result.Completeness)
	assert.Len(t, result.Reasons, 4)
}

func TestScoreEmptyLead(t *testing.T) {
	// Nothing filled: only the completeness floor counts.
	result := Score(core.NewSessionSnapshot("5511999999999"))

	assert.Equal(t, 5, result.Score)
	assert.Equal(t, CategoryPotential, result.Category)
	assert.Equal(t, float64(0), result.Completeness)
}

func TestScoreQualifiedLead(t *testing.T) {
	snap := fullSnapshot()
	snap.Renda = "3"
	snap.Profissao = "analista"
	snap.EstadoCivil = "solteiro"

	// 30 + 20 + 15 + 15 = 80... lands exactly on the Premium boundary.
	result := Score(snap)
	assert.Equal(t, 80, result.Score)
	assert.Equal(t, CategoryPremium, result.Category)

	snap.Renda = "2"
	result = Score(snap)
	assert.Equal(t, 70, result.Score)
	assert.Equal(t, CategoryQualified, result.Category)
}

func TestScoreIncomeBands(t *testing.T) {
	cases := []struct {
		renda  string
		points int
	}{
		{"5", 40},
		{"4", 35},
		{"3", 30},
		{"2", 20},
		{"1", 10},
	}
	for _, tc := range cases {
		snap := core.NewSessionSnapshot("5511999999999")
		snap.Renda = tc.renda
		result := Score(snap)
		// Income points plus the 5-point completeness floor.
		assert.Equal(t, tc.points+5, result.Score, "renda %q", tc.renda)
	}
}

func TestScoreAutonomousProfession(t *testing.T) {
	snap := core.NewSessionSnapshot("5511999999999")
	snap.Profissao = "autônomo"
	result := Score(snap)
	assert.Equal(t, 15+5, result.Score)
}

func TestScorePartialCompleteness(t *testing.T) {
	snap := core.NewSessionSnapshot("5511999999999")
	snap.Nome = "Maria"
	snap.CPF = "123"
	snap.Email = "m@x.com"
	snap.Endereco = "Rua A"
	snap.Naturalidade = "SP"
	snap.NomeMae = "Ana"

	// 6 of 9 fields filled: 66.7% completeness earns 8 points.
	result := Score(snap)
	assert.InDelta(t, 66.7, result.Completeness, 0.1)
	assert.Equal(t, 8, result.Score)
}
