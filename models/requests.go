package models

// ChatTurn is one prior exchange entry sent along with a new question.
// Role is "user" or "assistant".
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Chat_Request is the body of a streaming chat call. History carries the
// prior turns in order; Conversation_ID is empty on the first turn and the
// server assigns one.
type Chat_Request struct {
	Message         string     `json:"message"`
	History         []ChatTurn `json:"history,omitempty"`
	Conversation_ID string     `json:"conversation_id,omitempty"`
}

// TitleUpdateRequest is the body of a manual title edit.
type TitleUpdateRequest struct {
	Title string `json:"title"`
}
