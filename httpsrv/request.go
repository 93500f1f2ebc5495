package httpsrv

import (
	"io/ioutil"
	"mime/multipart"

	"github.com/gofiber/fiber"
	"github.com/gofiber/utils"
)

type (
	uploadedFile struct {
		name    string
		content []byte
	}

	// request is the decoded view of an incoming request that expectations
	// are matched against. Header names are folded to lower case and the
	// path keeps its raw query string.
	request struct {
		method  string
		path    string
		headers map[string]string
		body    []byte
		form    map[string][]string
		files   map[string][]uploadedFile
	}
)

func decodeRequest(c *fiber.Ctx) *request {
	req := &request{
		method:  c.Method(),
		path:    c.OriginalURL(),
		headers: map[string]string{},
		form:    map[string][]string{},
		files:   map[string][]uploadedFile{},
	}

	c.Fasthttp.Request.Header.VisitAll(func(name, value []byte) {
		key := utils.ToLower(string(name))
		if _, ok := req.headers[key]; !ok {
			req.headers[key] = string(value)
		}
	})

	if body := c.Fasthttp.Request.Body(); len(body) > 0 {
		req.body = append([]byte(nil), body...)
	}

	c.Fasthttp.PostArgs().VisitAll(func(name, value []byte) {
		field := string(name)
		req.form[field] = append(req.form[field], string(value))
	})

	if form, err := c.MultipartForm(); err == nil && form != nil {
		for field, values := range form.Value {
			req.form[field] = append(req.form[field], values...)
		}

		for field, headers := range form.File {
			for _, header := range headers {
				content, err := readUpload(header)
				if err != nil {
					continue
				}
				req.files[field] = append(req.files[field], uploadedFile{
					name:    header.Filename,
					content: content,
				})
			}
		}
	}

	return req
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ioutil.ReadAll(file)
}
