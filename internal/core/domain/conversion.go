package domain

import (
	"io"
	"time"
)

type RunStatus string

const (
	RunIdle       RunStatus = "idle"
	RunUploading  RunStatus = "uploading"
	RunProcessing RunStatus = "processing"
	RunSucceeded  RunStatus = "succeeded"
	RunFailed     RunStatus = "failed"
)

func (s RunStatus) IsActive() bool {
	return s == RunUploading || s == RunProcessing
}

func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// RunSnapshot is the read model the orchestrator publishes to observers.
type RunSnapshot struct {
	Run      uint64    `json:"run"`
	Status   RunStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Advisory string    `json:"advisory,omitempty"`
	Files    []string  `json:"files,omitempty"`
}

type ConversionSuccess struct {
	ArtifactRef       string
	SuggestedFilename string
	Message           string
	FileCount         int
}

type ConversionFailure struct {
	Reason string
	Err    error
}

// ConversionOutcome holds exactly one of Success or Failure.
type ConversionOutcome struct {
	Success *ConversionSuccess
	Failure *ConversionFailure
}

func Succeeded(artifactRef, filename, message string, fileCount int) ConversionOutcome {
	return ConversionOutcome{Success: &ConversionSuccess{
		ArtifactRef:       artifactRef,
		SuggestedFilename: filename,
		Message:           message,
		FileCount:         fileCount,
	}}
}

func Failed(reason string, err error) ConversionOutcome {
	return ConversionOutcome{Failure: &ConversionFailure{Reason: reason, Err: err}}
}

func (o ConversionOutcome) OK() bool {
	return o.Success != nil
}

// Upload is one file received by the conversion backend.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// ConversionResult is what the backend returns for a converted batch.
type ConversionResult struct {
	BatchID     string `json:"-"`
	Status      string `json:"status"`
	DownloadURL string `json:"downloadUrl"`
	Message     string `json:"message"`
	Filename    string `json:"filename"`
	FileCount   int    `json:"fileCount"`
}

// ConversionCompleted is published once a batch artifact is ready for download.
type ConversionCompleted struct {
	BatchID   string    `json:"batch_id"`
	ToolID    string    `json:"tool_id"`
	Filename  string    `json:"filename"`
	FileCount int       `json:"file_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Artifact describes a stored file ready to be streamed to a client.
type Artifact struct {
	Key          string
	DownloadName string
	MimeType     string
	Size         int64
}

// ReleaseReason records why an artifact left storage.
type ReleaseReason string

const (
	ReleaseDownloaded ReleaseReason = "downloaded"
	ReleaseExpired    ReleaseReason = "expired"
)
