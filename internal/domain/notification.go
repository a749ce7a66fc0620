package domain

type ChannelKind string

const (
	ChannelEmail    ChannelKind = "email"
	ChannelWhatsApp ChannelKind = "whatsapp"
)

// Delivery — результат отправки в один канал уведомлений.
// Reason заполняется, когда Sent == false (в том числе при осознанном подавлении).
type Delivery struct {
	Sent     bool   `json:"sent"`
	Provider string `json:"provider"`
	Reason   string `json:"reason,omitempty"`
}

const (
	ReasonDryRun        = "dry-run"
	ReasonNothingNew    = "no new or escalated findings"
	ReasonNotConfigured = "not configured"
)
