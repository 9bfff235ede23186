package catalog

import (
	"strings"
	"time"
)

// Book is a catalog entry. Slug is the identity and is always stored lowercase.
type Book struct {
	Slug            string    `dynamodbav:"slug" json:"slug" yaml:"slug"` // PK
	Title           string    `dynamodbav:"title" json:"title" yaml:"title"`
	Authors         []string  `dynamodbav:"authors,omitempty" json:"authors" yaml:"authors"`
	ISBN            string    `dynamodbav:"isbn,omitempty" json:"isbn,omitempty" yaml:"isbn"`
	Description     string    `dynamodbav:"description,omitempty" json:"description,omitempty" yaml:"description"`
	Price           float64   `dynamodbav:"price" json:"price" yaml:"price"`
	MRP             *float64  `dynamodbav:"mrp,omitempty" json:"mrp,omitempty" yaml:"mrp"`
	DiscountPercent float64   `dynamodbav:"discount_percent" json:"discountPercent" yaml:"discountPercent"`
	Currency        string    `dynamodbav:"currency" json:"currency" yaml:"currency"`
	Category        string    `dynamodbav:"category,omitempty" json:"category,omitempty" yaml:"category"`
	Language        string    `dynamodbav:"language,omitempty" json:"language,omitempty" yaml:"language"`
	CoverImage      string    `dynamodbav:"cover_image,omitempty" json:"coverImage,omitempty" yaml:"coverImage"`
	PDFPreview      string    `dynamodbav:"pdf_preview,omitempty" json:"pdfPreview,omitempty" yaml:"pdfPreview"`
	Stock           int       `dynamodbav:"stock" json:"stock" yaml:"stock"`
	Views           int       `dynamodbav:"views" json:"views" yaml:"-"`
	CreatedAt       time.Time `dynamodbav:"created_at" json:"createdAt" yaml:"-"`
	UpdatedAt       time.Time `dynamodbav:"updated_at" json:"updatedAt" yaml:"-"`
}

// NormalizeSlug is the canonical form used for storage and lookup.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// Page is one page of a listing.
type Page struct {
	Items []Book `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query selects books for a listing.
type Query struct {
	Text     string
	Category string
	Page     int // 1-based
	Limit    int
}

func (q Query) normalized() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	q.Text = strings.TrimSpace(q.Text)
	q.Category = strings.TrimSpace(q.Category)
	return q
}
