package nylas

// EmailName is a participant as the Nylas API encodes it.
type EmailName struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Header is a raw message header returned with fields=include_headers.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is a message object from the v3 messages endpoints.
type Message struct {
	ID       string      `json:"id"`
	GrantID  string      `json:"grant_id"`
	ThreadID string      `json:"thread_id"`
	Subject  string      `json:"subject"`
	From     []EmailName `json:"from"`
	To       []EmailName `json:"to"`
	Date     int64       `json:"date"`
	Headers  []Header    `json:"headers,omitempty"`
}

// ListMessagesResponse is the response from GET /v3/grants/{id}/messages.
type ListMessagesResponse struct {
	RequestID string    `json:"request_id"`
	Data      []Message `json:"data"`
}

// MessageResponse wraps a single message.
type MessageResponse struct {
	RequestID string  `json:"request_id"`
	Data      Message `json:"data"`
}

// SendMessageRequest is the body of POST /v3/grants/{id}/messages/send.
type SendMessageRequest struct {
	Subject          string      `json:"subject"`
	Body             string      `json:"body"`
	From             []EmailName `json:"from,omitempty"`
	To               []EmailName `json:"to"`
	Cc               []EmailName `json:"cc,omitempty"`
	Bcc              []EmailName `json:"bcc,omitempty"`
	ReplyToMessageID string      `json:"reply_to_message_id,omitempty"`
	CustomHeaders    []Header    `json:"custom_headers,omitempty"`
}

// ErrorResponse is the standard Nylas v3 error envelope.
type ErrorResponse struct {
	RequestID string `json:"request_id"`
	Error     struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
