package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lead(score int, area, details string) domain.LeadSnapshot {
	return domain.LeadSnapshot{
		SessionID: "s1",
		Score:     score,
		Answers: map[string]string{
			domain.AnswerLegalArea: area,
			domain.AnswerDetails:   details,
		},
	}
}

func TestDefaultPolicyDecisions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, err := Load(ctx, "", 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		lead domain.LeadSnapshot
		want domain.LeadDecision
	}{
		{
			name: "qualified penal lead is high priority",
			lead: lead(85, "Direito Penal", "fui intimado"),
			want: domain.LeadDecision{Qualified: true, Priority: "high", Area: "penal"},
		},
		{
			name: "qualified health lead",
			lead: lead(75, "Plano de Saúde", "negaram cobertura"),
			want: domain.LeadDecision{Qualified: true, Priority: "high", Area: "saude"},
		},
		{
			name: "qualified other area without urgency",
			lead: lead(80, "trabalhista", "fui demitido"),
			want: domain.LeadDecision{Qualified: true, Priority: "normal", Area: "other"},
		},
		{
			name: "urgent details raise priority",
			lead: lead(80, "família", "tenho audiência amanhã"),
			want: domain.LeadDecision{Qualified: true, Priority: "high", Area: "other"},
		},
		{
			name: "below threshold",
			lead: lead(40, "Direito Penal", ""),
			want: domain.LeadDecision{Qualified: false, Priority: "low", Area: "penal"},
		},
	}

	for _, tt := range tests {
		got, err := engine.Decide(ctx, tt.lead)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestThresholdOverride(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(context.Background(), DefaultPolicy, 30)
	require.NoError(t, err)

	got, err := engine.Decide(context.Background(), lead(40, "trabalhista", ""))
	require.NoError(t, err)
	assert.True(t, got.Qualified)
}

func TestLoadCustomPolicy(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.rego")
	module := `package leadflow

decision := {"qualified": true, "priority": "normal", "area": "other"}
`
	require.NoError(t, os.WriteFile(path, []byte(module), 0o600))

	engine, err := Load(context.Background(), path, 0)
	require.NoError(t, err)
	got, err := engine.Decide(context.Background(), lead(0, "", ""))
	require.NoError(t, err)
	assert.True(t, got.Qualified)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.rego"), 0)
	assert.Error(t, err)

	_, err = NewEngine(context.Background(), "package leadflow\n\ndecision := {", 0)
	assert.Error(t, err)

	engine, err := NewEngine(context.Background(), "package leadflow\n\nother := 1\n", 0)
	require.NoError(t, err)
	_, err = engine.Decide(context.Background(), lead(10, "", ""))
	assert.Error(t, err)
}
