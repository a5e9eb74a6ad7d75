package dzine

// TaskStatus is the canonical status of an external generation task. The API
// reports a wider vocabulary; the client collapses it at the boundary.
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskProgress is the normalized view of one progress poll.
type TaskProgress struct {
	Status      TaskStatus
	ResultURL   string
	ErrorReason string
}

// Img2ImgRequest describes a style transform of a reference image.
type Img2ImgRequest struct {
	Prompt         string
	StyleCode      string
	ImageData      string // data URI with a concrete image MIME type
	StyleIntensity float64
	StructureMatch float64
	FaceMatch      bool
	NegativePrompt string
}

// Txt2ImgRequest describes a pure text-to-image generation.
type Txt2ImgRequest struct {
	Prompt         string
	StyleCode      string
	NegativePrompt string
}

// Style is one entry of the hosted style catalog.
type Style struct {
	Code      string `json:"style_code"`
	Name      string `json:"name"`
	BaseModel string `json:"base_model"`
	CoverURL  string `json:"cover_url"`
}
