package protocol

import "errors"

const (
	// Handshake validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrProtoID         = "E_PROTO_ID"

	// Session.
	ErrServerFull = "E_SERVER_FULL"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrProtoID:         {},
	ErrServerFull:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

var (
	// ErrMalformed marks frames or payloads that cannot be decoded. Receivers drop them.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrChannelSaturated is returned when a channel's queued bytes would exceed its budget.
	ErrChannelSaturated = errors.New("protocol: channel saturated")
)
