package core

// MessageKind enumerates the message opcodes of spec §4.1/§6.2.
type MessageKind int

const (
	KindAction         MessageKind = 101
	KindActionResponse MessageKind = 102
	KindEvent          MessageKind = 103
	KindJoin           MessageKind = 104
	KindJoinResponse   MessageKind = 105
	KindError          MessageKind = 106
	// KindMerged is the combined state-update+events frame used only when
	// both the state-update and message encodings are MessagePack.
	KindMerged MessageKind = 107
)

// ActionMessage is the C→S payload of KindAction.
type ActionMessage struct {
	RequestID      string `json:"requestID"`
	TypeIdentifier string `json:"typeIdentifier"`
	PayloadB64     string `json:"payload"`
}

// ActionResponseMessage is the S→C payload of KindActionResponse.
type ActionResponseMessage struct {
	RequestID string      `json:"requestID"`
	Response  interface{} `json:"response"`
}

// ClientEventBody is the inner payload of an event originated by a client.
type ClientEventBody struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RawBody []byte      `json:"rawBody,omitempty"`
}

// EventMessage is the bidirectional payload of KindEvent. Exactly one of
// FromClient/FromServer is set.
type EventMessage struct {
	FromClient *ClientEventBody `json:"fromClient,omitempty"`
	FromServer interface{}      `json:"fromServer,omitempty"`
}

// JoinMessage is the C→S payload of KindJoin.
type JoinMessage struct {
	RequestID      string                 `json:"requestID"`
	LandType       string                 `json:"landType"`
	LandInstanceID string                 `json:"landInstanceId,omitempty"`
	PlayerID       string                 `json:"playerID,omitempty"`
	DeviceID       string                 `json:"deviceID,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// SchemaHash extracts the optional schema hash a client may carry in its
// join metadata, per spec §4.6.3 validation step 3.
func (j JoinMessage) SchemaHash() (string, bool) {
	if j.Metadata == nil {
		return "", false
	}
	v, ok := j.Metadata["schemaHash"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// JoinResponseMessage is the S→C payload of KindJoinResponse.
type JoinResponseMessage struct {
	RequestID      string `json:"requestID"`
	Success        bool   `json:"success"`
	LandType       string `json:"landType,omitempty"`
	LandInstanceID string `json:"landInstanceId,omitempty"`
	PlayerSlot     int32  `json:"playerSlot,omitempty"`
	Encoding       string `json:"encoding,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// ErrorMessage is the S→C payload of KindError.
type ErrorMessage struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TargetKind enumerates the forms an EventTarget may take (spec §4.2).
type TargetKind int

const (
	TargetSession TargetKind = iota
	TargetPlayer
	TargetBroadcast
	TargetBroadcastExcept
	TargetPlayers
)

// EventTarget selects which sessions a server event or pending event is
// destined for.
type EventTarget struct {
	Kind            TargetKind
	Session         SessionID
	Player          PlayerID
	ExceptSession   SessionID
	Players         []PlayerID
}

func TargetToSession(sid SessionID) EventTarget { return EventTarget{Kind: TargetSession, Session: sid} }
func TargetToPlayer(p PlayerID) EventTarget     { return EventTarget{Kind: TargetPlayer, Player: p} }
func TargetBroadcastAll() EventTarget           { return EventTarget{Kind: TargetBroadcast} }
func TargetBroadcastExceptSession(sid SessionID) EventTarget {
	return EventTarget{Kind: TargetBroadcastExcept, ExceptSession: sid}
}
func TargetToPlayers(players []PlayerID) EventTarget {
	return EventTarget{Kind: TargetPlayers, Players: players}
}
