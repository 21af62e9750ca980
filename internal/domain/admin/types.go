// Package admin contains the resources managed from the admin console:
// platform users, course applications, and dashboard statistics.
package admin

import (
	"encoding/json"
	"strings"
	"time"
)

// Document is an uploaded file embedded as a data URL.
type Document struct {
	DataURL      string `json:"dataUrl"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"originalName,omitempty"`
}

// IsImage reports whether the document can be previewed as an image.
func (d *Document) IsImage() bool {
	return d != nil && strings.HasPrefix(d.MimeType, "image/")
}

// Uploaded reports whether the document carries any content.
func (d *Document) Uploaded() bool {
	return d != nil && d.DataURL != ""
}

// Address is a user's postal address.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country,omitempty"`
}

// IsEmpty reports whether neither street nor city is known.
func (a Address) IsEmpty() bool {
	return a.Street == "" && a.City == ""
}

// Certificates are the qualification documents a member uploads.
type Certificates struct {
	TenthMarksheet    *Document `json:"tenthMarksheet,omitempty"`
	InterCertificate  *Document `json:"interCertificate,omitempty"`
	DegreeCertificate *Document `json:"degreeCertificate,omitempty"`
}

// Labeled returns the certificates with their display labels, in display order.
func (c Certificates) Labeled() []LabeledDocument {
	return []LabeledDocument{
		{Label: "10th Marksheet", Document: c.TenthMarksheet},
		{Label: "Inter Certificate", Document: c.InterCertificate},
		{Label: "Degree Certificate", Document: c.DegreeCertificate},
	}
}

// LabeledDocument pairs a document with its display label.
type LabeledDocument struct {
	Label    string
	Document *Document
}

// User is a registered platform member.
type User struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone,omitempty"`
	IsAdmin      bool         `json:"is_admin"`
	Address      Address      `json:"address"`
	ProfileImage *Document    `json:"profileImage,omitempty"`
	Certificates Certificates `json:"certificates"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// UnmarshalJSON accepts the document id under either "id" or "_id".
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	var raw struct {
		alias
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.alias)
	if u.ID == "" {
		u.ID = raw.MongoID
	}
	return nil
}

// Application is a course application submitted through the public site.
type Application struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Mobile    string            `json:"mobile"`
	Course    string            `json:"course"`
	Message   string            `json:"message,omitempty"`
	Status    ApplicationStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// UnmarshalJSON accepts the document id under either "id" or "_id".
func (a *Application) UnmarshalJSON(data []byte) error {
	type alias Application
	var raw struct {
		alias
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Application(raw.alias)
	if a.ID == "" {
		a.ID = raw.MongoID
	}
	return nil
}

// Stats are the aggregate counters shown on the dashboard.
type Stats struct {
	TotalUsers           int `json:"totalUsers"`
	TotalApplications    int `json:"totalApplications"`
	PendingApplications  int `json:"pendingApplications"`
	ApprovedApplications int `json:"approvedApplications"`
}

// Dashboard is the dashboard screen's data: counters plus recent activity.
type Dashboard struct {
	Stats              Stats         `json:"stats"`
	RecentApplications []Application `json:"recentApplications"`
	RecentUsers        []User        `json:"recentUsers"`
}
