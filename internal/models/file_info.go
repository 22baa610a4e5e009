package models

import "time"

// SelectedFile is the user-chosen document held pending submission.
// The bytes live in file storage under ID.
type SelectedFile struct {
	ID          string    `json:"id" msgpack:"id"`
	Name        string    `json:"name" msgpack:"name"`
	ContentType string    `json:"contentType" msgpack:"contentType"`
	Size        int64     `json:"size" msgpack:"size"`
	Hash        string    `json:"hash,omitempty" msgpack:"hash,omitempty"` // hex SHA-256 of the content
	SelectedAt  time.Time `json:"selectedAt" msgpack:"selectedAt"`
}
