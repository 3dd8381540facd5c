package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayErrorError(t *testing.T) {
	err := NewGatewayError(CodeJoinRoomFull, "room is full", map[string]interface{}{"landId": "arena"})
	assert.Equal(t, "JOIN_ROOM_FULL: room is full", err.Error())
}

func TestGatewayErrorWrapsAsError(t *testing.T) {
	var err error = NewGatewayError(CodeActionNotRegistered, "no such action", nil)
	var target *GatewayError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, CodeActionNotRegistered, target.Code)
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrInvalidSession, ErrSessionNotJoined, ErrAlreadyJoined, ErrLandNotFound,
		ErrLandTypeUnknown, ErrRoomIsFull, ErrSlotTableFull, ErrJoinDenied,
		ErrActionNotFound, ErrSyncInProgress, ErrDuplicateLandType,
	}
	seen := make(map[string]bool)
	for _, s := range sentinels {
		assert.False(t, seen[s.Error()], "duplicate sentinel message: %s", s.Error())
		seen[s.Error()] = true
	}
}
