package entity

import "time"

// BudgetItem is an RAB (Rencana Anggaran Biaya) line item, the
// originating entity whose approval the engine gates. It holds a weak
// back-reference to its instance plus a denormalized status copy for
// display; both are written only by the decision processor.
type BudgetItem struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	Code               string     `json:"code"`
	Description        string     `json:"description"`
	Category           string     `json:"category"`
	Quantity           float64    `json:"quantity"`
	Unit               string     `json:"unit"`
	UnitPrice          float64    `json:"unit_price"`
	Amount             float64    `json:"amount"`
	ApprovalStatus     string     `json:"approval_status"`
	ApprovalInstanceID string     `json:"approval_instance_id,omitempty"`
	ApprovedAmount     *float64   `json:"approved_amount,omitempty"`
	ApprovedBy         string     `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
