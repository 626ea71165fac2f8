package chat

import "context"

// Stream delivers parsed completion chunks. Read Chunks until it
// closes, then check Err for the stream outcome.
type Stream struct {
	chunks chan Chunk
	err    error
}

func newStream() *Stream {
	return &Stream{chunks: make(chan Chunk, 8)}
}

// Chunks returns the chunk channel. It closes when the stream ends,
// successfully or not.
func (s *Stream) Chunks() <-chan Chunk { return s.chunks }

// Err returns the stream failure, if any. Only valid after Chunks
// has closed.
func (s *Stream) Err() error { return s.err }

// send delivers one chunk, giving up if the caller abandoned the
// context.
func (s *Stream) send(ctx context.Context, c Chunk) bool {
	select {
	case s.chunks <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// close seals the stream. err is set before the channel closes, so
// any reader that observes the close also observes err.
func (s *Stream) close(err error) {
	s.err = err
	close(s.chunks)
}

// Collect drains the stream into a single response.
func (s *Stream) Collect() (Response, error) {
	var resp Response
	for chunk := range s.chunks {
		if chunk.ID != "" {
			resp.ID = chunk.ID
		}
		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		if chunk.FinishReason != "" {
			resp.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
		resp.Content += chunk.Delta.Content
	}
	if err := s.Err(); err != nil {
		return Response{}, err
	}
	return resp, nil
}
