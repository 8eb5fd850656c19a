// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to the table gateway

Instead of marshalling HTTP, the client talks directly to the mux router. It is
perfectly suited for unit tests. With NewWithURL the same API talks to a remote
gateway.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/tablegate/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithSecret() adds the client secret to every request.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to a running gateway
func NewWithURL(url string) Client {
	return Client{
		url:            strings.TrimSuffix(url, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := make(map[string]string, len(c.defaultHeaders)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithSecret returns a new client which sends the given client secret
func (c Client) WithSecret(secret string) Client {
	return c.WithHeader(access.HeaderClientSecret, secret)
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the base context of all requests
func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Table is the client of one table
type Table struct {
	client Client
	name   string
}

// Table returns a new table client
func (c Client) Table(name string) Table {
	return Table{client: c, name: name}
}

// Path returns the path of the table
func (t Table) Path() string {
	return "/table/" + t.name
}

func (t Table) itemPath(id int64) string {
	return t.Path() + "/" + strconv.FormatInt(id, 10)
}

// List lists all records of the table
func (t Table) List(result interface{}) (int, error) {
	return t.client.RawGet(t.Path(), result)
}

// Get reads a single record
func (t Table) Get(id int64, result interface{}) (int, error) {
	return t.client.RawGet(t.itemPath(id), result)
}

// Create creates a record. The result receives the message and the created record.
func (t Table) Create(body interface{}, result interface{}) (int, error) {
	return t.client.RawPost(t.Path(), body, result)
}

// Edit updates the given columns of a record
func (t Table) Edit(id int64, body interface{}, result interface{}) (int, error) {
	return t.client.RawPut(t.itemPath(id), body, result)
}

// Delete deletes a record
func (t Table) Delete(id int64) (int, error) {
	return t.client.RawDelete(t.itemPath(id))
}

// Filter lists all records whose columns equal the values in the body
func (t Table) Filter(body interface{}, result interface{}) (int, error) {
	return t.client.RawPost(t.Path()+"/filter", body, result)
}

// RawGet retrieves the resource at path
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, _, err := c.Do(http.MethodGet, path, nil, result)
	return status, err
}

// RawPost posts body to path. A []byte body is sent as-is, anything else is marshalled.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.Do(http.MethodPost, path, body, result)
	return status, err
}

// RawPut puts body to path. A []byte body is sent as-is, anything else is marshalled.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.Do(http.MethodPut, path, body, result)
	return status, err
}

// RawDelete deletes the resource at path
func (c Client) RawDelete(path string) (int, error) {
	status, _, err := c.Do(http.MethodDelete, path, nil, nil)
	return status, err
}

// Do executes a request and returns status and response headers. Any status other
// than 200 and 204 is returned as error together with the response body. A result of
// type *[]byte receives the raw response body.
func (c Client) Do(method, path string, body interface{}, result interface{}) (int, http.Header, error) {
	var reader io.Reader
	if body != nil {
		j, ok := body.([]byte)
		if !ok {
			var err error
			j, err = json.Marshal(body)
			if err != nil {
				return http.StatusBadRequest, nil, fmt.Errorf("%s to %s: %w", method, path, err)
			}
		}
		reader = bytes.NewBuffer(j)
	}

	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return http.StatusBadRequest, nil, err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}

	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, nil, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}

	status := res.StatusCode
	if status == http.StatusNoContent {
		return status, res.Header, nil
	}
	if status != http.StatusOK {
		return status, res.Header, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}

	if len(resBody) > 0 && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, res.Header, err
}
