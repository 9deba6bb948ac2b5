package audit

import "time"

// Entry is one hash-chained, HMAC-signed audit record.
type Entry struct {
	Sequence     int64                  `json:"sequence"`
	Timestamp    time.Time              `json:"timestamp"`
	TenantID     string                 `json:"tenant_id"`
	Actor        string                 `json:"actor"`
	Action       string                 `json:"action"`
	Resource     string                 `json:"resource"`
	ResourceID   string                 `json:"resource_id"`
	Result       string                 `json:"result"`
	Details      map[string]interface{} `json:"details,omitempty"`
	PreviousHash []byte                 `json:"previous_hash"`
	EntryHash    []byte                 `json:"entry_hash"`
	HMAC         []byte                 `json:"hmac"`
}

// payload is the subset of Entry that feeds the hash chain. EntryHash and
// HMAC are deliberately excluded: they are derived FROM this payload, so
// including them would make the chain self-referential.
type payload struct {
	Sequence     int64                  `json:"sequence"`
	Timestamp    time.Time              `json:"timestamp"`
	TenantID     string                 `json:"tenant_id"`
	Actor        string                 `json:"actor"`
	Action       string                 `json:"action"`
	Resource     string                 `json:"resource"`
	ResourceID   string                 `json:"resource_id"`
	Result       string                 `json:"result"`
	Details      map[string]interface{} `json:"details,omitempty"`
	PreviousHash []byte                 `json:"previous_hash"`
}

func (e Entry) payload() payload {
	return payload{
		Sequence:     e.Sequence,
		Timestamp:    e.Timestamp,
		TenantID:     e.TenantID,
		Actor:        e.Actor,
		Action:       e.Action,
		Resource:     e.Resource,
		ResourceID:   e.ResourceID,
		Result:       e.Result,
		Details:      e.Details,
		PreviousHash: e.PreviousHash,
	}
}
