package httpsrv

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/gofiber/utils"
	"github.com/httpsrv/go-httpsrv/encode"
)

type contentMode int

// Body matching modes, most specific last. When an expectation is built with
// more than one body shape the most specific one wins.
const (
	matchAnyBody contentMode = iota
	matchText
	matchJSON
	matchForm
	matchFiles
)

type (
	// Expectation describes the requests a rule applies to: method, path
	// including the query string, a subset of headers and one body shape.
	// An empty method or path matches anything. Expectations are immutable
	// once built.
	Expectation struct {
		method  string
		path    string
		headers map[string]string

		mode     contentMode
		text     []byte
		jsonSet  bool
		jsonDoc  interface{}
		form     map[string][]string
		files    map[string]map[string][]byte
		fileForm map[string][]string
	}

	// ExpectOption adds a constraint to a new expectation
	ExpectOption func(e *Expectation)
)

// WithHeaders expects every given header to be present with an exactly equal
// value. Names are folded to lower case; headers not listed are ignored.
func WithHeaders(headers map[string]string) ExpectOption {
	return func(e *Expectation) {
		for name, value := range headers {
			e.headers[utils.ToLower(name)] = value
		}
	}
}

// WithText expects the request body to equal text byte for byte. An empty
// text places no constraint on the body.
func WithText(text string) ExpectOption {
	return func(e *Expectation) {
		e.text = []byte(text)
	}
}

// WithJSON expects the request body to parse as JSON structurally equal to
// doc, regardless of key order or whitespace
func WithJSON(doc interface{}) ExpectOption {
	return func(e *Expectation) {
		e.jsonSet = true
		e.jsonDoc = normalizeJSON(doc)
	}
}

// WithForm expects the decoded form fields to equal the given field map
// exactly: same field set, same values in the same order
func WithForm(fields map[string][]string) ExpectOption {
	return func(e *Expectation) {
		e.form = copyForm(fields)
	}
}

// WithFiles expects every listed (field, filename, content) to be present
// among the uploaded files; extra uploads are ignored. A non-nil fields map
// additionally constrains the accompanying form fields the way WithForm does.
func WithFiles(files map[string]map[string][]byte, fields map[string][]string) ExpectOption {
	return func(e *Expectation) {
		e.files = map[string]map[string][]byte{}
		for field, byName := range files {
			e.files[field] = map[string][]byte{}
			for name, content := range byName {
				e.files[field][name] = append([]byte(nil), content...)
			}
		}
		if fields != nil {
			e.fileForm = copyForm(fields)
		}
	}
}

func newExpectation(method, path string, opts ...ExpectOption) *Expectation {
	e := &Expectation{
		method:  method,
		path:    path,
		headers: map[string]string{},
	}

	for _, applyOption := range opts {
		applyOption(e)
	}

	switch {
	case e.files != nil:
		e.mode = matchFiles
	case e.form != nil:
		e.mode = matchForm
	case e.jsonSet:
		e.mode = matchJSON
	case len(e.text) > 0:
		e.mode = matchText
	default:
		e.mode = matchAnyBody
	}

	return e
}

// matches reports whether req satisfies every constraint of the expectation.
// Checks run cheapest first and short-circuit on the first mismatch.
func (e *Expectation) matches(req *request) bool {
	if e.method != "" && e.method != req.method {
		return false
	}

	if e.path != "" && e.path != req.path {
		return false
	}

	for name, expected := range e.headers {
		if actual, ok := req.headers[name]; !ok || actual != expected {
			return false
		}
	}

	return e.matchesBody(req)
}

func (e *Expectation) matchesBody(req *request) bool {
	switch e.mode {
	case matchText:
		return bytes.Equal(req.body, e.text)
	case matchJSON:
		var actual interface{}
		// a body that does not parse is a non-match, not an error
		if err := json.Unmarshal(req.body, &actual); err != nil {
			return false
		}
		return reflect.DeepEqual(actual, e.jsonDoc)
	case matchForm:
		return formEqual(req.form, e.form)
	case matchFiles:
		return e.matchesFiles(req)
	}

	return true
}

func (e *Expectation) matchesFiles(req *request) bool {
	for field, byName := range e.files {
		uploads := req.files[field]
		for name, content := range byName {
			if !containsFile(uploads, name, content) {
				return false
			}
		}
	}

	if e.fileForm != nil && !formEqual(req.form, e.fileForm) {
		return false
	}

	return true
}

func containsFile(uploads []uploadedFile, name string, content []byte) bool {
	for _, upload := range uploads {
		if upload.name == name && bytes.Equal(upload.content, content) {
			return true
		}
	}

	return false
}

func formEqual(actual, expected map[string][]string) bool {
	if len(actual) != len(expected) {
		return false
	}

	for field, values := range expected {
		actualValues, ok := actual[field]
		if !ok || len(actualValues) != len(values) {
			return false
		}
		for i, value := range values {
			if actualValues[i] != value {
				return false
			}
		}
	}

	return true
}

func copyForm(fields map[string][]string) map[string][]string {
	copied := make(map[string][]string, len(fields))
	for field, values := range fields {
		copied[field] = append([]string(nil), values...)
	}

	return copied
}

// normalizeJSON round-trips doc through its JSON encoding so expected and
// parsed request values compare with the same scalar types
func normalizeJSON(doc interface{}) interface{} {
	b, err := encode.JSON(doc)
	if err != nil {
		return doc
	}

	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return doc
	}

	return v
}
