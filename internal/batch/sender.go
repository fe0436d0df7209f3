package batch

import "context"

// Sender performs one outbound provider call for a descriptor and returns
// the raw response body. Failures should be *TransportError where a status
// is known; timeouts and retries are the Sender's business.
//
//go:generate mockgen -package=batch_test -destination=mock_sender_test.go -source=sender.go Sender
type Sender interface {
	Send(ctx context.Context, d Descriptor) ([]byte, error)
}
