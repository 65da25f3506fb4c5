package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ProtocolID      uint64 `json:"protocol_id"`
	Name            string `json:"name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ClientID        uint64          `json:"client_id"`
	SessionID       string          `json:"session_id"`
	WorldParams     WorldParams     `json:"world_params"`
	Channels        []ChannelParams `json:"channels"`
}

type WorldParams struct {
	TickRateHz     int        `json:"tick_rate_hz"`
	ChunkSize      [3]int     `json:"chunk_size"`
	ChunkRadius    int        `json:"chunk_radius"`
	VerticalChunks int        `json:"vertical_chunks"`
	Seed           int64      `json:"seed"`
	PlayerSpeed    float32    `json:"player_speed"`
	Spawn          [3]float32 `json:"spawn"`
}

type ChannelParams struct {
	ID             uint8  `json:"id"`
	Name           string `json:"name"`
	ResendMs       int    `json:"resend_ms"`
	MaxMemoryBytes int    `json:"max_memory_bytes"`
}

// ERROR (server -> client) is sent before the server closes a rejected connection.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
