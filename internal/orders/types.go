package orders

import "time"

// Status is the payment lifecycle state of an order.
type Status string

// Order statuses. created is the only non-terminal state.
const (
	StatusCreated Status = "created"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to Status) bool {
	return from == StatusCreated && to.IsTerminal()
}

// LineItem is one purchased book, priced in major units as the buyer saw it.
type LineItem struct {
	BookID   string  `dynamodbav:"book_id,omitempty" json:"bookId,omitempty"`
	Slug     string  `dynamodbav:"slug,omitempty" json:"slug,omitempty"`
	Title    string  `dynamodbav:"title" json:"title"`
	Quantity int     `dynamodbav:"qty" json:"qty"`
	Price    float64 `dynamodbav:"price" json:"price"`
}

// Address is the shipping address.
type Address struct {
	Line1   string `dynamodbav:"line1,omitempty" json:"line1,omitempty"`
	Line2   string `dynamodbav:"line2,omitempty" json:"line2,omitempty"`
	City    string `dynamodbav:"city,omitempty" json:"city,omitempty"`
	State   string `dynamodbav:"state,omitempty" json:"state,omitempty"`
	Pincode string `dynamodbav:"pincode,omitempty" json:"pincode,omitempty"`
	Country string `dynamodbav:"country,omitempty" json:"country,omitempty"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID          string                 `dynamodbav:"order_id" json:"orderId"` // PK, local id
	GatewayOrderID   string                 `dynamodbav:"gateway_order_id" json:"gatewayOrderId"`
	GatewayPaymentID string                 `dynamodbav:"gateway_payment_id,omitempty" json:"gatewayPaymentId,omitempty"`
	GatewaySignature string                 `dynamodbav:"gateway_signature,omitempty" json:"gatewaySignature,omitempty"`
	Receipt          string                 `dynamodbav:"receipt,omitempty" json:"receipt,omitempty"`
	Amount           int64                  `dynamodbav:"amount" json:"amount"` // minor units
	Currency         string                 `dynamodbav:"currency" json:"currency"`
	Status           Status                 `dynamodbav:"status" json:"status"`
	Name             string                 `dynamodbav:"name" json:"name"`
	Email            string                 `dynamodbav:"email" json:"email"`
	Phone            string                 `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	Address          Address                `dynamodbav:"address" json:"address"`
	Items            []LineItem             `dynamodbav:"items" json:"items"`
	Metadata         map[string]interface{} `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
	IdempotencyKey   string                 `dynamodbav:"idempotency_key,omitempty" json:"-"`
	CreatedAt        time.Time              `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt        time.Time              `dynamodbav:"updated_at" json:"updatedAt"`
	PaidAt           *time.Time             `dynamodbav:"paid_at,omitempty" json:"paidAt,omitempty"`
}

// PaymentUpdate carries the gateway identifiers recorded on a status transition.
type PaymentUpdate struct {
	PaymentID string
	Signature string
}
