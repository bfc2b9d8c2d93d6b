package models

// Question is a denormalized copy of the active question, embedded in
// the room document so every client sees prompt, image and answer set
// atomically with the index/status fields of a question advance.
type Question struct {
	Prompt   string   `json:"prompt"`
	ImageURL string   `json:"image_url"`
	Answers  []string `json:"answers"`
}
