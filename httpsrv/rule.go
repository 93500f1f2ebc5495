package httpsrv

import (
	"net/http"
	"sync"

	"github.com/gofiber/utils"
	"github.com/google/uuid"

	"github.com/httpsrv/go-httpsrv/encode"
)

type (
	// Rule pairs one expectation with the response served when it matches.
	// Tests hold on to the returned *Rule to shape the response and to ask
	// the server whether this specific rule was consumed.
	Rule struct {
		id     string
		expect *Expectation

		mu      sync.Mutex
		status  int
		headers map[string]string
		body    []byte
	}

	// response is the immutable snapshot of a rule's template taken when
	// the rule is served
	response struct {
		status  int
		headers map[string]string
		body    []byte
	}
)

func newRule(expect *Expectation) *Rule {
	return &Rule{
		id:      uuid.New().String(),
		expect:  expect,
		status:  http.StatusOK,
		headers: map[string]string{},
	}
}

// ID returns the rule's unique identifier, as reported by the config
// endpoints and log fields
func (r *Rule) ID() string {
	return r.id
}

// Status responds with the given status code. The last call wins.
func (r *Rule) Status(status int) *Rule {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = status

	return r
}

// Headers merges the given headers into the response. Names are folded to
// lower case; a repeated name overwrites the earlier value.
func (r *Rule) Headers(headers map[string]string) *Rule {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, value := range headers {
		r.headers[utils.ToLower(name)] = value
	}

	return r
}

// Text responds with the given text content. The last body-shaping call wins.
func (r *Rule) Text(text string) *Rule {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.body = []byte(text)

	return r
}

// JSON responds with doc encoded as JSON, setting content-type to
// application/json unless the rule already carries an explicit content-type
func (r *Rule) JSON(doc interface{}) *Rule {
	body, err := encode.JSON(doc)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		r.body = body
	}
	if _, ok := r.headers["content-type"]; !ok {
		r.headers["content-type"] = "application/json"
	}

	return r
}

func (r *Rule) response() response {
	r.mu.Lock()
	defer r.mu.Unlock()

	headers := make(map[string]string, len(r.headers))
	for name, value := range r.headers {
		headers[name] = value
	}

	return response{
		status:  r.status,
		headers: headers,
		body:    r.body,
	}
}
