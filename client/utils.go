package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

type loginInfo struct {
	email, password string
}

// StatusError is returned when the server answers with a non 200 status.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Content    string
}

func (e *StatusError) Error() string {
	if e.Content == "" {
		return fmt.Sprintf("%v request to endpoint %v returned status %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%v request to endpoint %v returned status %d, content '%v'", e.Method, e.Endpoint, e.StatusCode, e.Content)
}

type httpRequest struct {
	client      *http.Client
	method      string
	baseUrl     string
	endpoint    string
	headers     map[string]string
	queryParams map[string]string
	json        interface{}
	body        io.Reader
	login       *loginInfo
}

func newHttpRequest(client *http.Client, method, baseUrl, endpoint string) *httpRequest {
	return &httpRequest{
		client:   client,
		method:   method,
		baseUrl:  baseUrl,
		endpoint: endpoint,
	}
}

func (r *httpRequest) Header(key, value string) *httpRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpRequest) Login(email, password string) *httpRequest {
	r.login = &loginInfo{email: email, password: password}
	return r
}

func (r *httpRequest) Auth(token string) *httpRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpRequest) Json(data interface{}) *httpRequest {
	r.json = data
	return r
}

func (r *httpRequest) Body(body io.Reader) *httpRequest {
	r.body = body
	return r
}

func (r *httpRequest) Param(key, value string) *httpRequest {
	if r.queryParams == nil {
		r.queryParams = make(map[string]string)
	}
	r.queryParams[key] = value
	return r
}

func (r *httpRequest) Process(resultHandler func(res *http.Response) error) error {
	fullEndpoint, err := url.JoinPath(r.baseUrl, r.endpoint)
	if err != nil {
		return fmt.Errorf("error formatting url for endpoint %v: %w", r.endpoint, err)
	}

	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req, err := http.NewRequest(r.method, fullEndpoint, r.body)
	if err != nil {
		return fmt.Errorf("error creating %v request for endpoint %v: %w", r.method, r.endpoint, err)
	}

	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.email, r.login.password)
	}

	if r.queryParams != nil {
		query := req.URL.Query()
		for k, v := range r.queryParams {
			query.Add(k, v)
		}
		req.URL.RawQuery = query.Encode()
	}

	start := time.Now()

	res, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %v request to endpoint %v: %w", r.method, r.endpoint, err)
	}
	defer res.Body.Close()

	slog.Debug("script ink client", "method", r.method, "endpoint", r.endpoint, "status", res.StatusCode, "duration", time.Since(start).String())

	if res.StatusCode != http.StatusOK {
		content, _ := io.ReadAll(res.Body)
		return &StatusError{Method: r.method, Endpoint: r.endpoint, StatusCode: res.StatusCode, Content: string(bytes.TrimSpace(content))}
	}

	if resultHandler != nil {
		err := resultHandler(res)
		if err != nil {
			return fmt.Errorf("error processing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

func (r *httpRequest) Do(result interface{}) error {
	return r.Process(func(res *http.Response) error {
		if result != nil {
			err := json.NewDecoder(res.Body).Decode(result)
			if err != nil {
				return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
			}
		}
		return nil
	})
}

type BaseClient struct {
	httpClient *http.Client
	baseUrl    string
	authToken  string
}

func NewBaseClient(baseUrl string, authToken string) BaseClient {
	return BaseClient{httpClient: http.DefaultClient, baseUrl: baseUrl, authToken: authToken}
}

func (c *BaseClient) request(method, endpoint string) *httpRequest {
	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	r := newHttpRequest(httpClient, method, c.baseUrl, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *BaseClient) Get(endpoint string) *httpRequest {
	return c.request("GET", endpoint)
}

func (c *BaseClient) Post(endpoint string) *httpRequest {
	return c.request("POST", endpoint)
}

func (c *BaseClient) Put(endpoint string) *httpRequest {
	return c.request("PUT", endpoint)
}

func (c *BaseClient) Delete(endpoint string) *httpRequest {
	return c.request("DELETE", endpoint)
}

type idResponse struct {
	Id uuid.UUID `json:"id"`
}
