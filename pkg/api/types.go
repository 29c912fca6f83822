package api

import (
	"bytes"
	"encoding/json"
)

// Envelope is the backend's standard response wrapper.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// FlexString accepts a JSON string or number. Catalog ids come back as either.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// DetectionResult is the object detector output. Index i of each slice describes one object.
type DetectionResult struct {
	BBoxes [][]float64 `json:"bboxes"`
	Labels []string    `json:"labels"`
	Scores []float64   `json:"scores"`
}

// RetrievalResult is the image retrieval output. Products may contain nulls
// for paths without a catalog row.
type RetrievalResult struct {
	RetrievedImagePaths []string   `json:"retrieved_image_paths"`
	DetectedLabels      []string   `json:"detected_labels"`
	SimilarityScores    []float64  `json:"similarity_scores"`
	Products            []*Product `json:"products,omitempty"`
}

// Review is a catalog product review.
type Review struct {
	User    string `json:"user"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Product is a catalog row as the backend returns it.
type Product struct {
	ID           FlexString `json:"id"`
	Name         string     `json:"name"`
	Title        string     `json:"title,omitempty"`
	MaterialInfo *string    `json:"material_info"`
	Description  string     `json:"description"`
	Brand        string     `json:"brand,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	Category     string     `json:"category,omitempty"`
	ProductLink  string     `json:"product_link,omitempty"`
	Image        string     `json:"image"`
	Reviews      []Review   `json:"reviews,omitempty"`
}

// DisplayName prefers name and falls back to the older title field.
func (p Product) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Title
}

// Rating averages review ratings; zero when there are no reviews.
func (p Product) Rating() (avg float64, count int) {
	if len(p.Reviews) == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range p.Reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(p.Reviews)), len(p.Reviews)
}

// AdvisorResponse is returned by all advisor endpoints. Response is kept raw
// because the backend has been seen to return non-string payloads.
type AdvisorResponse struct {
	Response json.RawMessage `json:"response"`
	Products []Product       `json:"products,omitempty"`
}

// Text returns the response string, or false when it is absent or not a string.
func (r *AdvisorResponse) Text() (string, bool) {
	if r == nil {
		return "", false
	}
	return rawString(r.Response)
}

// OnlineSearchResponse is the generic online-search agent output.
type OnlineSearchResponse struct {
	Message  json.RawMessage `json:"message"`
	Response json.RawMessage `json:"response"`
}

// Text prefers message, then response. Structured responses are returned as compact JSON.
func (r *OnlineSearchResponse) Text() (string, bool) {
	if r == nil {
		return "", false
	}
	if s, ok := rawString(r.Message); ok {
		return s, true
	}
	if s, ok := rawString(r.Response); ok {
		return s, true
	}
	if len(r.Response) > 0 && !bytes.Equal(bytes.TrimSpace(r.Response), []byte("null")) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, r.Response); err == nil {
			return buf.String(), true
		}
	}
	return "", false
}

// Store is one nearby store candidate.
type Store struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TrendGeoRequest is the store lookup request body.
type TrendGeoRequest struct {
	ProductMetadata      any    `json:"product_metadata"`
	UserStyleDescription string `json:"user_style_description"`
	UserLocation         string `json:"user_location"`
}

// TrendGeoResponse is the store lookup result.
type TrendGeoResponse struct {
	Stores []Store `json:"stores"`
}

// VoiceData carries the transcript. Older backends send transcript as a string,
// newer ones as {"text": ...}; some send a top-level text field.
type VoiceData struct {
	Transcript json.RawMessage `json:"transcript"`
	Text       string          `json:"text"`
}

// VoiceToTextResponse is the speech-to-text result.
type VoiceToTextResponse = Envelope[VoiceData]

// TranscriptText extracts the transcript from any of the known shapes.
func (d VoiceData) TranscriptText() string {
	if s, ok := rawString(d.Transcript); ok {
		return s
	}
	var nested struct {
		Text string `json:"text"`
	}
	if len(d.Transcript) > 0 && json.Unmarshal(d.Transcript, &nested) == nil && nested.Text != "" {
		return nested.Text
	}
	return d.Text
}

// Credentials is the login/signup body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginData is the authenticated identity.
type LoginData struct {
	Email     string `json:"email"`
	Token     string `json:"token"`
	TokenType string `json:"token_type,omitempty"`
}

// LoginResponse wraps LoginData.
type LoginResponse = Envelope[LoginData]

// ImageUpload is the result of a user image upload.
type ImageUpload struct {
	Filename string `json:"filename"`
	UserID   string `json:"user_id"`
}

func rawString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}
