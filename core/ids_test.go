package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLandIDString(t *testing.T) {
	tests := []struct {
		name string
		id   LandID
		want string
	}{
		{name: "type only", id: LandID{LandType: "arena"}, want: "arena"},
		{name: "type and instance", id: NewLandID("arena", "abc123"), want: "arena:abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.String())
		})
	}
}

func TestParseLandID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  LandID
	}{
		{name: "type only", input: "arena", want: LandID{LandType: "arena"}},
		{name: "type and instance", input: "arena:abc123", want: LandID{LandType: "arena", InstanceID: "abc123"}},
		{name: "instance contains colon", input: "arena:ab:cd", want: LandID{LandType: "arena", InstanceID: "ab:cd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLandID(tt.input))
		})
	}
}

func TestLandIDStringParseRoundTrip(t *testing.T) {
	id := NewLandID("dungeon", "xyz")
	assert.Equal(t, id, ParseLandID(id.String()))
}

func TestLandIDIsReplayOf(t *testing.T) {
	tests := []struct {
		name     string
		id       LandID
		baseType string
		want     bool
	}{
		{name: "matching replay suffix", id: LandID{LandType: "arena-replay"}, baseType: "arena", want: true},
		{name: "not a replay", id: LandID{LandType: "arena"}, baseType: "arena", want: false},
		{name: "different base type", id: LandID{LandType: "dungeon-replay"}, baseType: "arena", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.IsReplayOf(tt.baseType))
		})
	}
}

func TestNoSlotSentinel(t *testing.T) {
	assert.Equal(t, PlayerSlot(-1), NoSlot)
	assert.Less(t, int32(NoSlot), int32(0))
}
