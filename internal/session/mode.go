package session

import "fmt"

// Mode is the state of a recording session.
type Mode string

const (
	ModeIdle            Mode = "idle"
	ModeCapturing       Mode = "capturing"
	ModeCaptureComplete Mode = "capture_complete"
	ModeFileStaged      Mode = "file_staged"
	ModeUploading       Mode = "uploading"
	ModeUploadSucceeded Mode = "upload_succeeded"
	ModeUploadFailed    Mode = "upload_failed"
	ModePlaying         Mode = "playing"
)

// canStartCapture reports whether a new capture may begin from m.
func (m Mode) canStartCapture() bool {
	return m == ModeIdle || m == ModeFileStaged
}

// canStage reports whether a file may be staged from m.
func (m Mode) canStage() bool {
	return m == ModeIdle || m == ModeFileStaged || m == ModeUploadFailed
}

// busy reports whether a capture or transmission is in progress.
func (m Mode) busy() bool {
	return m == ModeCapturing || m == ModeCaptureComplete || m == ModeUploading || m == ModeUploadSucceeded
}

// InputMode is the active input tab of a story screen.
type InputMode string

const (
	InputRecord InputMode = "record"
	InputUpload InputMode = "upload"
	InputOthers InputMode = "others"
)

// FormatElapsed renders seconds as zero padded MM:SS.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
