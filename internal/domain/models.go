package domain

import "image"

// Page is one unit of transcription work: a rendered document page or a
// chunk of plain text.
type Page struct {
	// Image is the live decoded page, present only while a project is being
	// worked on in memory. It is never serialized; ImagePath is the stable
	// reference the store keeps.
	Image image.Image `json:"-"`

	ImagePath    string `json:"imagePath,omitempty"`
	Transcript   string `json:"transcript"`
	Status       string `json:"status"`
	OriginalText string `json:"originalText,omitempty"`
}

// ImageSourced reports whether the page came from a rendered image rather
// than pasted text. Only image-sourced pages can be transcribed.
func (p Page) ImageSourced() bool {
	return p.ImagePath != ""
}

type Project struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"` // epoch milliseconds, set once at ingestion
	Pages     []Page `json:"pages"`
}

const (
	StatusPending = "pending"
	StatusWorking = "working"
	StatusDone    = "done"
	StatusError   = "error"
)

// Settings holds the user-editable configuration for the transcription
// service. The API key is stored unencrypted in the local data directory.
type Settings struct {
	APIKey string `json:"apiKey,omitempty"`
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// SettingsPatch is a partial update: nil fields are left untouched by a save.
type SettingsPatch struct {
	APIKey *string `json:"apiKey"`
	Model  *string `json:"model"`
	Prompt *string `json:"prompt"`
}
