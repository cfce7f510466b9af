// Package webhook implements the HTTP ingress for externally triggered
// hooks: per-hook bearer/HMAC authentication, the strict validation chain,
// and wake vs. task dispatch. Grounded on
// 88lin-divinesense/plugin/chat_apps/channels/telegram/webhook.go's
// WebhookHandler/VerifyRequest shape for the HTTP handler, and
// 88lin-divinesense/plugin/chat_apps/channels/dingtalk/crypto.go's
// VerifyWebhookSignature (hmac.Equal constant-time compare) for HMAC auth.
package webhook

import (
	"github.com/arcrelay/bridge/internal/cron"
)

// AuthMode distinguishes bearer-token from HMAC-signature auth.
type AuthMode string

const (
	AuthBearer AuthMode = "bearer"
	AuthHMAC   AuthMode = "hmac"
)

// Mode distinguishes wake dispatch (routes into a chat's main session)
// from task dispatch (spawns an isolated subprocess).
type Mode string

const (
	ModeWake Mode = "wake"
	ModeTask Mode = "task"
)

// Hook is one webhook entry.
type Hook struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Mode        Mode   `json:"mode"`
	Template    string `json:"prompt_template"`
	Enabled     bool   `json:"enabled"`
	TaskFolder  string `json:"task_folder,omitempty"`

	AuthMode AuthMode `json:"auth_mode"`
	Bearer   BearerAuth `json:"bearer,omitempty"`
	HMAC     HMACAuth   `json:"hmac,omitempty"`

	Overrides cron.ExecOverrides `json:"overrides"`

	QuietHourStart *int   `json:"quiet_hour_start,omitempty"`
	QuietHourEnd   *int   `json:"quiet_hour_end,omitempty"`
	DependencyKey  string `json:"dependency_key,omitempty"`

	TriggerCount    int    `json:"trigger_count"`
	LastTriggeredAt string `json:"last_triggered_at,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

// BearerAuth holds the per-hook bearer token. Never logged or echoed back
// to chat-visible output.
type BearerAuth struct {
	Token string `json:"token,omitempty"`
}

// HMACAuth holds HMAC verification material.
type HMACAuth struct {
	Secret            string `json:"secret"`
	Header            string `json:"header"`
	Algorithm         string `json:"algorithm"` // "sha256" or "sha1"
	Encoding          string `json:"encoding"`  // "hex" or "base64"
	SignaturePrefix   string `json:"signature_prefix,omitempty"`
	SignatureRegex    string `json:"signature_regex,omitempty"`
	PayloadPrefixRegex string `json:"payload_prefix_regex,omitempty"`
}

// Document is the shape of webhooks.json.
type Document struct {
	Hooks []Hook `json:"hooks"`
}
