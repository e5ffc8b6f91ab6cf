package models

// UpstreamUnit is one incremental unit from the model stream: a text delta
// and/or a batch of grounding references. Either field may be empty.
type UpstreamUnit struct {
	Text      string
	Grounding []GroundingReference
}

// GroundingReference is a citation-like pointer the model returns alongside
// generated text. Title is the only reliable key; URI is the provider's
// internal document URI, Text the supporting excerpt.
type GroundingReference struct {
	Title string
	URI   string
	Text  string
}
