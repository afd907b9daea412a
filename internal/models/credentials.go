package models

// DestinationCredentials is what the token provider hands back for one
// destination within one campaign. AccountID is the destination-specific
// target: a chat id, group id, page id, or business-account id.
type DestinationCredentials struct {
	Token     string            `json:"token"`
	AccountID string            `json:"account_id"`
	Extra     map[string]string `json:"extra,omitempty"`
}
