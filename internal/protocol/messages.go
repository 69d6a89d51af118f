// ABOUTME: Check Time wire message definitions
// ABOUTME: WebSocket time exchange messages and HTTP time/compare payloads
package protocol

// Message types exchanged over the websocket
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeClientTime  = "client/time"
	TypeServerTime  = "server/time"
)

// Message is the top-level wrapper for all websocket messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to open a time session
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	Zone     string `json:"zone"`
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Client timestamp in microseconds
}

// ServerTime is the response to client/time. Timestamps are Unix microseconds.
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Echoed client timestamp
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// TimeResponse is the body of GET /api/time
type TimeResponse struct {
	Success    bool   `json:"success"`
	ServerTime string `json:"serverTime,omitempty"` // RFC 3339 with milliseconds
	UnixMillis int64  `json:"unixMillis,omitempty"`
	Zone       string `json:"zone,omitempty"`
	Error      string `json:"error,omitempty"`
}

// WorldTime is the subset of a WorldTimeAPI response used for the reference clock
type WorldTime struct {
	Datetime string `json:"datetime"`
	Timezone string `json:"timezone,omitempty"`
}

// CompareRequest is the body of POST /api/time/compare
type CompareRequest struct {
	TargetURL string `json:"targetUrl"`
}

// CompareResponse wraps a comparison result
type CompareResponse struct {
	Success bool        `json:"success"`
	Data    *Comparison `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Comparison is the full result of comparing a target server against this one
type Comparison struct {
	TimeComparison TimeComparison `json:"timeComparison"`
	NetworkInfo    NetworkInfo    `json:"networkInfo"`
	Analysis       Analysis       `json:"analysis"`
	Metadata       Metadata       `json:"metadata"`
}

// TimeComparison carries the offset of the target relative to our clock
type TimeComparison struct {
	OurServerTime           string  `json:"ourServerTime"`
	TargetServerTime        string  `json:"targetServerTime"`
	CorrectedTargetTime     string  `json:"correctedTargetTime"`
	TimeDifference          float64 `json:"timeDifference"` // ms, target - ours
	TimeDifferenceFormatted string  `json:"timeDifferenceFormatted"`
	Direction               string  `json:"direction"` // "ahead" or "behind"
}

// NetworkInfo describes the exchange that produced the comparison
type NetworkInfo struct {
	RTT          float64 `json:"rtt"`          // ms
	NetworkDelay float64 `json:"networkDelay"` // ms, rtt/2
	Reliability  string  `json:"reliability"`  // excellent|good|fair|poor
}

// Analysis is a human readable interpretation of the comparison
type Analysis struct {
	Accuracy       string `json:"accuracy"`
	Recommendation string `json:"recommendation"`
	TrustLevel     int    `json:"trustLevel"` // 0-100
}

// Metadata records when and how the comparison was made
type Metadata struct {
	MeasuredAt string `json:"measuredAt"`
	Source     string `json:"source"`
	Cached     bool   `json:"cached"`
}
