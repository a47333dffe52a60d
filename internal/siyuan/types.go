// Package siyuan implements the per-account HTTP clients for the two
// inbox backends: the ld246 cloud shorthand service and a self-hosted
// SiYuan kernel.
package siyuan

import (
	"encoding/json"
	"fmt"
)

// FileKind classifies a downloadable media file and doubles as the
// extension of generated file names.
type FileKind string

const (
	KindImage FileKind = "image"
	KindAudio FileKind = "audio"
	KindVideo FileKind = "video"
)

// Response is the `{code, msg, data}` envelope both backends share.
// A 2xx transport status with a non-zero code is an application-level
// failure.
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// APIError carries a non-zero envelope code and its message.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Msg)
}

// UploadResult is the data payload of both upload endpoints.
type UploadResult struct {
	SuccMap  map[string]string `json:"succMap"`
	ErrFiles []string          `json:"errFiles"`
}

// dailyNote is the data payload of /api/filetree/createDailyNote.
type dailyNote struct {
	ID string `json:"id"`
}

// UploadFile names one local file to send in a multipart upload.
type UploadFile struct {
	Name string
	Path string
}

// CloudEndpoints holds the fixed cloud inbox URLs and header set.
type CloudEndpoints struct {
	AddURL         string
	UploadURL      string
	UserAgentKey   string
	UserAgentValue string
	BizTypeKey     string
	BizTypeValue   string
	MetaTypeKey    string
	MetaTypeValue  string
}

// CacheDirs resolves the local download directory per file kind.
type CacheDirs struct {
	Images string
	Audios string
	Videos string
}

// For returns the directory for the given kind.
func (c CacheDirs) For(kind FileKind) string {
	switch kind {
	case KindAudio:
		return c.Audios
	case KindVideo:
		return c.Videos
	default:
		return c.Images
	}
}
