package responder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketAgentConfig_Validate_FillsDefaults(t *testing.T) {
	cfg := TicketAgentConfig{
		TicketID:            "ticket-1",
		AgentID:             "agent-1",
		AutoResponseEnabled: true,
		ConfidenceThreshold: 0.5,
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 30, cfg.EscalationTimeoutMinutes)
}

func TestTicketAgentConfig_Validate_KeepsExplicitValues(t *testing.T) {
	cfg := TicketAgentConfig{
		TicketID:                 "ticket-1",
		ConfidenceThreshold:      1.0,
		MaxAttempts:              5,
		EscalationTimeoutMinutes: 10,
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 10, cfg.EscalationTimeoutMinutes)
}

func TestTicketAgentConfig_Validate_Rejections(t *testing.T) {
	tests := []struct {
		name string
		cfg  TicketAgentConfig
	}{
		{"missing ticket id", TicketAgentConfig{ConfidenceThreshold: 0.5}},
		{"threshold below zero", TicketAgentConfig{TicketID: "t", ConfidenceThreshold: -0.1}},
		{"threshold above one", TicketAgentConfig{TicketID: "t", ConfidenceThreshold: 1.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}
