package protocol

import "github.com/google/uuid"

// OutgoingRequest is a queued POST. It is not modified after creation.
type OutgoingRequest struct {
	ID          string
	RemotePath  string
	Payload     []byte
	ContentType string
}

// NewOutgoingRequest copies payload and tags the request with a fresh ID.
func NewOutgoingRequest(remotePath string, payload []byte, contentType string) OutgoingRequest {
	return OutgoingRequest{
		ID:          uuid.NewString(),
		RemotePath:  remotePath,
		Payload:     append([]byte(nil), payload...),
		ContentType: contentType,
	}
}

// BadResponse is a response whose status code was 300 or above. Body holds
// the raw first chunk of the response.
type BadResponse struct {
	StatusCode int
	Body       []byte
}

// FailedRequest is a request dropped because its connect or send failed.
type FailedRequest struct {
	Request OutgoingRequest
	Err     error
}
