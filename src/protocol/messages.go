package protocol

// MsgType is the one-byte frame tag that precedes every encoded message on
// the wire.
type MsgType uint8

const (
	// RegisterType announces the node to the coordinator.
	RegisterType MsgType = iota
	// RegisterAckType accepts or rejects a registration.
	RegisterAckType
	// HeartbeatType is the periodic liveness signal.
	HeartbeatType
	// HeartbeatAckType acknowledges a heartbeat.
	HeartbeatAckType
	// ChallengeType is a proof-of-capacity challenge.
	ChallengeType
	// ChallengeResponseType answers a challenge.
	ChallengeResponseType
	// StoreRequestType asks the node to store vectors.
	StoreRequestType
	// StoreResponseType reports the outcome of a store request.
	StoreResponseType
	// SearchQueryType asks the node for a similarity search.
	SearchQueryType
	// SearchResultType carries search results back.
	SearchResultType
	// ErrorType reports a protocol-level error to the peer.
	ErrorType
)

// String ...
func (t MsgType) String() string {
	switch t {
	case RegisterType:
		return "register"
	case RegisterAckType:
		return "register_ack"
	case HeartbeatType:
		return "heartbeat"
	case HeartbeatAckType:
		return "heartbeat_ack"
	case ChallengeType:
		return "challenge"
	case ChallengeResponseType:
		return "challenge_response"
	case StoreRequestType:
		return "store_request"
	case StoreResponseType:
		return "store_response"
	case SearchQueryType:
		return "search_query"
	case SearchResultType:
		return "search_result"
	case ErrorType:
		return "error"
	default:
		return "unknown"
	}
}

// Message is implemented by every wire message.
type Message interface {
	WireType() MsgType
}

// Register carries the node's identity and commitment. It is the first
// message of every session.
type Register struct {
	NodeID             string `json:"node_id"`
	WalletAddress      string `json:"wallet_address"`
	ReferralID         string `json:"referral_id"`
	RAMCommitmentBytes int64  `json:"ram_commitment_bytes"`
	EmbeddingDim       int    `json:"embedding_dim"`
	IndexVersion       int    `json:"index_version"`
	Timestamp          int64  `json:"timestamp"`
}

// WireType implements the Message interface.
func (m *Register) WireType() MsgType { return RegisterType }

// RegisterAck is the coordinator's answer to a Register. The session only
// becomes active when Accepted is true.
type RegisterAck struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

// WireType implements the Message interface.
func (m *RegisterAck) WireType() MsgType { return RegisterAckType }

// Heartbeat is the periodic liveness signal, sent only while the session is
// active.
type Heartbeat struct {
	NodeID        string `json:"node_id"`
	VectorsStored int    `json:"vectors_stored"`
	BytesUsed     int64  `json:"bytes_used"`
	Timestamp     int64  `json:"timestamp"`
}

// WireType implements the Message interface.
func (m *Heartbeat) WireType() MsgType { return HeartbeatType }

// HeartbeatAck acknowledges a heartbeat.
type HeartbeatAck struct{}

// WireType implements the Message interface.
func (m *HeartbeatAck) WireType() MsgType { return HeartbeatAckType }

// Challenge asks the node to prove it still holds a sample of its committed
// records. DeadlineUnixMS is an absolute unix-epoch deadline in milliseconds;
// a response produced after it is not transmitted and counts as a miss.
type Challenge struct {
	Nonce          string   `json:"nonce"`
	SampleIDs      []string `json:"sample_ids"`
	DeadlineUnixMS int64    `json:"deadline"`
}

// WireType implements the Message interface.
func (m *Challenge) WireType() MsgType { return ChallengeType }

// ChallengeResponse carries the deterministic digest over the sampled
// records. Sampled ids that the node no longer holds are reported in
// MissingIDs; the coordinator's scoring depends on honest reporting.
type ChallengeResponse struct {
	Nonce          string   `json:"nonce"`
	Digest         string   `json:"digest"`
	MissingIDs     []string `json:"missing_ids"`
	ResponseTimeMS int64    `json:"response_time_ms"`
}

// WireType implements the Message interface.
func (m *ChallengeResponse) WireType() MsgType { return ChallengeResponseType }

// StoreRequest asks the node to store a batch of vectors. The vector payload
// is zstd-compressed, base64-encoded little-endian float32 data; see
// EncodeVectors.
type StoreRequest struct {
	RequestID  string              `json:"request_id"`
	IDs        []string            `json:"ids"`
	VectorsB64 string              `json:"vectors_b64"`
	Dim        int                 `json:"dim"`
	Metadata   []map[string]string `json:"metadata"`
}

// WireType implements the Message interface.
func (m *StoreRequest) WireType() MsgType { return StoreRequestType }

// Store response statuses.
const (
	StoreStatusOK    = "ok"
	StoreStatusFull  = "full"
	StoreStatusError = "error"
)

// StoreResponse reports the outcome of a StoreRequest.
type StoreResponse struct {
	RequestID    string `json:"request_id"`
	NodeID       string `json:"node_id"`
	StoredCount  int    `json:"stored_count"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// WireType implements the Message interface.
func (m *StoreResponse) WireType() MsgType { return StoreResponseType }

// SearchQuery asks for the K nearest stored records to the query vector.
type SearchQuery struct {
	RequestID string `json:"request_id"`
	QueryB64  string `json:"query_b64"`
	Dim       int    `json:"dim"`
	K         int    `json:"k"`
}

// WireType implements the Message interface.
func (m *SearchQuery) WireType() MsgType { return SearchQueryType }

// SearchResult carries the ids and distances of a search, ordered by
// non-decreasing distance.
type SearchResult struct {
	RequestID string    `json:"request_id"`
	NodeID    string    `json:"node_id"`
	IDs       []string  `json:"ids"`
	Distances []float32 `json:"distances"`
}

// WireType implements the Message interface.
func (m *SearchResult) WireType() MsgType { return SearchResultType }

// Error codes reported to the peer.
const (
	ErrCodeCapacityExceeded = "CAPACITY_EXCEEDED"
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// Error reports a protocol-level error to the peer.
type Error struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// WireType implements the Message interface.
func (m *Error) WireType() MsgType { return ErrorType }
