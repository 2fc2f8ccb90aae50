// Package hostproto implements the NDJSON message protocol the engine
// speaks with its host process (spec §6): one JSON object per line on
// stdout/stdin, discriminated by a "type" field, correlated by a uuid
// request id the way sa_sync.go tags its sync records.
package hostproto

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// Inbound message types (from the host).
const (
	TypeInit          = "INIT"
	TypeImageLoaded   = "IMAGE_LOADED"
	TypeGetCacheStats = "GET_CACHE_STATS"
)

// Outbound message types (to the host).
const (
	TypeDisplayPhoto     = "DISPLAY_PHOTO"
	TypeUpdateStatus     = "UPDATE_STATUS"
	TypeConnectionStatus = "CONNECTION_STATUS"
	TypeError            = "ERROR"
	TypeCacheStats       = "CACHE_STATS"
)

// Envelope is the common shape of every line: a discriminator, a
// correlation id, and a type-specific payload.
type Envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// NewRequestID mints a fresh correlation id. Writer stamps one on every
// outbound message, including replies to an inbound request.
func NewRequestID() string {
	return uuid.New().String()
}

// InitPayload carries the raw config map from an INIT message; the engine
// package is responsible for decoding it into its typed Config.
type InitPayload struct {
	Config map[string]any `json:"config"`
}

type ImageLoadedPayload struct {
	ID string `json:"id"`
}

type DisplayPhotoPayload struct {
	ID           string  `json:"id"`
	ImageBase64  string  `json:"image"`
	Filename     string  `json:"filename"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	CreationTime int64   `json:"creation_time"`
	LocationName *string `json:"location_name,omitempty"`
}

// EncodeImage base64-encodes raw image bytes for the wire (spec §6
// "Base64 on the wire").
func EncodeImage(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

type ConnectionStatusPayload struct {
	Status  string `json:"status"` // online | offline | retrying | error | initializing
	Message string `json:"message,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type CacheStatsPayload struct {
	TotalSizeMB         float64 `json:"totalSizeMB"`
	MaxSizeMB           float64 `json:"maxSizeMB"`
	UsagePercent        float64 `json:"usagePercent"`
	CachedCount         int     `json:"cachedCount"`
	TotalCount          int     `json:"totalCount"`
	CachePercent        float64 `json:"cachePercent"`
	ConsecutiveFailures int     `json:"consecutiveFailures"`
	IsOffline           bool    `json:"isOffline"`
}

type UpdateStatusPayload struct {
	Message string `json:"message"`
}
