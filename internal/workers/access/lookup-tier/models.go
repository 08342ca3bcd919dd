// internal/workers/access/lookup-tier/models.go
package lookuptier

import "preset-workers/internal/common/validation"

type Input struct {
	UserID string `json:"userId"`
}

// Output carries the tier signal every preset job consumes.
type Output struct {
	Tier   string `json:"tier"`
	Plan   string `json:"subscriptionPlan,omitempty"`
	Active bool   `json:"subscriptionActive"`
}

// Subscription is a user_subscriptions row. It is also the cached value.
type Subscription struct {
	UserID    string `json:"userId"`
	Plan      string `json:"plan"`
	ExpiresAt string `json:"expiresAt"`
	IsValid   bool   `json:"isValid"`
}

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["userId"],
	"properties": {
		"userId": {"type": "string", "minLength": 1, "maxLength": 128}
	}
}`)
