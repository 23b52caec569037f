package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/lineage"
	"script_ink/script_bazaar/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

type statusError struct {
	method   string
	endpoint string
	code     int
	content  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v request to endpoint %v returned status %d, content '%v'", e.method, e.endpoint, e.code, e.content)
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	_, err := r.do(result)
	return err
}

func (r *httpTestRequest) do(result interface{}) (*httptest.ResponseRecorder, error) {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return nil, fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		return w, &statusError{method: r.method, endpoint: r.endpoint, code: w.Code, content: w.Body.String()}
	}

	if result != nil {
		err := json.Unmarshal(w.Body.Bytes(), result)
		if err != nil {
			return w, fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return w, nil
}

func statusCode(err error) int {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code
	}
	if err == nil {
		return http.StatusOK
	}
	return -1
}

func requireStatus(t *testing.T, err error, code int) {
	t.Helper()
	if got := statusCode(err); got != code {
		t.Fatalf("expected status %d, got %d: %v", code, got, err)
	}
}

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c *client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c *client) Put(endpoint string) *httpTestRequest {
	return c.request("PUT", endpoint)
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password, "displayName": username,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

type idResponse struct {
	Id uuid.UUID `json:"id"`
}

type scriptParams struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	IsPublic  bool     `json:"isPublic"`
	AllowFork bool     `json:"allowFork"`
	Tags      []string `json:"tags"`
}

func (c *client) createScript(params scriptParams) (uuid.UUID, error) {
	var res idResponse
	err := c.Post("/scripts").Json(params).Do(&res)
	return res.Id, err
}

func (c *client) scriptInfo(scriptId uuid.UUID) (services.ScriptInfo, error) {
	var res services.ScriptInfo
	err := c.Get(fmt.Sprintf("/scripts/%v", scriptId)).Do(&res)
	return res, err
}

func (c *client) listScripts(query string) ([]services.ScriptInfo, error) {
	var res []services.ScriptInfo
	err := c.Get("/scripts" + query).Do(&res)
	return res, err
}

func (c *client) updateScript(scriptId uuid.UUID, update map[string]interface{}) error {
	return c.Put(fmt.Sprintf("/scripts/%v", scriptId)).Json(update).Do(nil)
}

func (c *client) deleteScript(scriptId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/scripts/%v", scriptId)).Do(nil)
}

func (c *client) fork(scriptId uuid.UUID) (uuid.UUID, error) {
	var res idResponse
	err := c.Post(fmt.Sprintf("/scripts/%v/fork", scriptId)).Do(&res)
	return res.Id, err
}

func (c *client) lineage(scriptId uuid.UUID) (lineage.Lineage, error) {
	var res lineage.Lineage
	err := c.Get(fmt.Sprintf("/scripts/%v/lineage", scriptId)).Do(&res)
	return res, err
}

func (c *client) listEntities(scriptId uuid.UUID) ([]services.EntityInfo, error) {
	var res []services.EntityInfo
	err := c.Get(fmt.Sprintf("/scripts/%v/entities", scriptId)).Do(&res)
	return res, err
}

func (c *client) upsertEntity(scriptId, entityId uuid.UUID, body map[string]interface{}) (services.EntityInfo, error) {
	var res services.EntityInfo
	err := c.Put(fmt.Sprintf("/scripts/%v/entities/%v", scriptId, entityId)).Json(body).Do(&res)
	return res, err
}

func (c *client) deleteEntity(scriptId, entityId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/scripts/%v/entities/%v", scriptId, entityId)).Do(nil)
}

func (c *client) createMergeRequest(targetId, sourceId uuid.UUID, summary string) (uuid.UUID, error) {
	var res idResponse
	body := map[string]interface{}{"sourceScriptId": sourceId, "summary": summary}
	err := c.Post(fmt.Sprintf("/scripts/%v/merge-requests", targetId)).Json(body).Do(&res)
	return res.Id, err
}

func (c *client) listMergeRequests(scriptId uuid.UUID) ([]core.MergeRequestInfo, error) {
	var res struct {
		Requests []core.MergeRequestInfo `json:"requests"`
	}
	err := c.Get(fmt.Sprintf("/scripts/%v/merge-requests", scriptId)).Do(&res)
	return res.Requests, err
}

func (c *client) mergeRequest(requestId uuid.UUID) (core.MergeRequestInfo, error) {
	var res core.MergeRequestInfo
	err := c.Get(fmt.Sprintf("/merge-requests/%v", requestId)).Do(&res)
	return res, err
}

func (c *client) setMergeRequestStatus(requestId uuid.UUID, status string) error {
	var res map[string]bool
	err := c.Put(fmt.Sprintf("/merge-requests/%v", requestId)).Json(map[string]string{"status": status}).Do(&res)
	if err == nil && !res["ok"] {
		return fmt.Errorf("expected ok response, got %v", res)
	}
	return err
}

func (c *client) truthLock(scriptId uuid.UUID) (*services.TruthLockInfo, error) {
	var res *services.TruthLockInfo
	err := c.Get(fmt.Sprintf("/scripts/%v/truth-lock", scriptId)).Do(&res)
	return res, err
}

func (c *client) setTruthLock(scriptId uuid.UUID, truth string) (uuid.UUID, error) {
	var res idResponse
	err := c.Post(fmt.Sprintf("/scripts/%v/truth-lock", scriptId)).Json(map[string]string{"truth": truth}).Do(&res)
	return res.Id, err
}
