package idempotency

import (
	"bytes"
	"net/http"
	"sort"

	dbtypes "github.com/angelmondragon/newsletter-backend/pkg/db/types"
)

// Response is the stored HTTP response replayed for duplicate submissions.
type Response struct {
	StatusCode int
	Headers    dbtypes.HeaderPairs
	Body       []byte
}

// Replay writes the stored response verbatim.
func (r Response) Replay(w http.ResponseWriter) {
	for _, h := range r.Headers {
		w.Header().Add(h.Name, string(h.Value))
	}
	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}

// Recorder buffers a handler's output so it can be persisted before it reaches the client.
type Recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func NewRecorder() *Recorder {
	return &Recorder{header: http.Header{}}
}

func (r *Recorder) Header() http.Header {
	return r.header
}

func (r *Recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
}

func (r *Recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

// Response snapshots the recorded output. Header names are emitted in sorted
// order; repeated values keep their write order.
func (r *Recorder) Response() Response {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}

	names := make([]string, 0, len(r.header))
	for name := range r.header {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := dbtypes.HeaderPairs{}
	for _, name := range names {
		for _, value := range r.header[name] {
			headers = append(headers, dbtypes.HeaderPair{Name: name, Value: []byte(value)})
		}
	}

	return Response{
		StatusCode: status,
		Headers:    headers,
		Body:       bytes.Clone(r.body.Bytes()),
	}
}
