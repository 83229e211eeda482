package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestAutomationFlow_HasRun(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	fresh := AutomationFlow{TriggerConfig: datatypes.NewJSONType(TriggerConfig{Schedule: "0 10 * * *"})}
	assert.False(t, fresh.HasRun())

	dispatchedOnly := fresh
	dispatchedOnly.LastDispatchedAt = &at
	assert.True(t, dispatchedOnly.HasRun())

	reported := AutomationFlow{TriggerConfig: datatypes.NewJSONType(TriggerConfig{
		Schedule:       "0 10 * * *",
		LastExecutedAt: &at,
	})}
	assert.True(t, reported.HasRun())
}
