// Package uploads issues signed parameters for direct browser uploads to the
// asset service. Only the resulting URL is ever stored on a book.
package uploads

import (
	"net/url"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"

	"github.com/imrishuroy/go-bookstore/internal/apperr"
)

const (
	DefaultFolder       = "books"
	DefaultResourceType = "auto"
)

// Credentials identify the upload account.
type Credentials struct {
	CloudName string
	APIKey    string
	APISecret string
}

func (c Credentials) Configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Signature is returned to the browser, which posts it with the file.
type Signature struct {
	CloudName    string `json:"cloudName"`
	APIKey       string `json:"apiKey"`
	Timestamp    int64  `json:"timestamp"`
	Folder       string `json:"folder"`
	ResourceType string `json:"resource_type"`
	Signature    string `json:"signature"`
}

type Signer struct {
	creds   Credentials
	nowFunc func() time.Time
}

func NewSigner(creds Credentials) *Signer {
	return &Signer{creds: creds, nowFunc: time.Now}
}

// Sign signs {folder, timestamp}. resourceType is echoed for the client but
// is not part of the signed payload.
func (s *Signer) Sign(folder, resourceType string) (*Signature, error) {
	if !s.creds.Configured() {
		return nil, apperr.Configuration("upload service not configured")
	}
	if folder == "" {
		folder = DefaultFolder
	}
	if resourceType == "" {
		resourceType = DefaultResourceType
	}
	ts := s.nowFunc().Unix()

	params := url.Values{}
	params.Set("folder", folder)
	params.Set("timestamp", strconv.FormatInt(ts, 10))

	sig, err := api.SignParameters(params, s.creds.APISecret)
	if err != nil {
		return nil, apperr.Internal("sign upload parameters", err)
	}
	return &Signature{
		CloudName:    s.creds.CloudName,
		APIKey:       s.creds.APIKey,
		Timestamp:    ts,
		Folder:       folder,
		ResourceType: resourceType,
		Signature:    sig,
	}, nil
}
