package validation

import "encoding/json"

// Item is one cart line as sent by the browser. Price is per unit in major
// currency units; a missing quantity means 1.
type Item struct {
	BookID   string  `json:"bookId"`
	Slug     string  `json:"slug" validate:"required_without=BookID"`
	Title    string  `json:"title"`
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"qty" validate:"gte=0"`
}

// Address is the optional shipping address.
type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	Items    []Item                 `json:"items" validate:"required,min=1,dive"`
	Name     string                 `json:"name" validate:"required"`
	Email    string                 `json:"email" validate:"required,email"`
	Phone    string                 `json:"phone,omitempty"`
	Address  *Address               `json:"address,omitempty"`
	Currency string                 `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Amount   *float64               `json:"amount,omitempty" validate:"omitempty,gte=0"` // optional total the client claims
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// VerifyPaymentRequest is the payload for POST /verify-payment.
type VerifyPaymentRequest struct {
	PaymentID      string `json:"paymentId" validate:"required"`
	GatewayOrderID string `json:"gatewayOrderId" validate:"required"`
	Signature      string `json:"signature" validate:"required"`
	OrderID        string `json:"orderId" validate:"required"`
}

// UnmarshalJSON also accepts the field names the checkout widget returns
// (razorpay_payment_id, razorpay_order_id, razorpay_signature).
func (r *VerifyPaymentRequest) UnmarshalJSON(b []byte) error {
	type plain VerifyPaymentRequest
	var aux struct {
		plain
		WidgetPaymentID string `json:"razorpay_payment_id"`
		WidgetOrderID   string `json:"razorpay_order_id"`
		WidgetSignature string `json:"razorpay_signature"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = VerifyPaymentRequest(aux.plain)
	if r.PaymentID == "" {
		r.PaymentID = aux.WidgetPaymentID
	}
	if r.GatewayOrderID == "" {
		r.GatewayOrderID = aux.WidgetOrderID
	}
	if r.Signature == "" {
		r.Signature = aux.WidgetSignature
	}
	return nil
}

// CreateBookRequest is the payload for POST /books.
type CreateBookRequest struct {
	Title           string   `json:"title" validate:"required"`
	Slug            string   `json:"slug" validate:"required,max=200"`
	Authors         []string `json:"authors"`
	ISBN            string   `json:"isbn"`
	Description     string   `json:"description"`
	Price           *float64 `json:"price" validate:"required,gte=0"`
	MRP             *float64 `json:"mrp,omitempty" validate:"omitempty,gte=0"`
	DiscountPercent float64  `json:"discountPercent" validate:"gte=0,lte=100"`
	Currency        string   `json:"currency" validate:"omitempty,len=3,alpha"`
	Category        string   `json:"category"`
	Language        string   `json:"language"`
	CoverImage      string   `json:"coverImage" validate:"omitempty,url"`
	PDFPreview      string   `json:"pdfPreview" validate:"omitempty,url"`
	Stock           int      `json:"stock" validate:"gte=0"`
}

// SignUploadRequest is the payload for POST /uploads/sign.
type SignUploadRequest struct {
	Folder       string `json:"folder" validate:"omitempty,max=100"`
	ResourceType string `json:"resource_type" validate:"omitempty,oneof=auto image raw video"`
}
