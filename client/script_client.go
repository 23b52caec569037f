package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"script_ink/script_bazaar/assist"
	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/lineage"
	"script_ink/script_bazaar/services"

	"github.com/google/uuid"
)

type ScriptInkClient struct {
	BaseClient
	userId string
}

// New creates a client for the api mounted at baseUrl, e.g. http://host:8000/api.
func New(baseUrl string) *ScriptInkClient {
	return &ScriptInkClient{BaseClient: NewBaseClient(baseUrl, "")}
}

func (c *ScriptInkClient) WithHttpClient(httpClient *http.Client) *ScriptInkClient {
	c.httpClient = httpClient
	return c
}

func (c *ScriptInkClient) UserId() string {
	return c.userId
}

func (c *ScriptInkClient) Signup(username, email, password, displayName string) error {
	body := map[string]string{
		"email": email, "username": username, "password": password, "displayName": displayName,
	}

	return c.Post("/user/signup").Json(body).Do(nil)
}

func (c *ScriptInkClient) Login(email, password string) error {
	var data map[string]string
	err := c.Get("/user/login").Login(email, password).Do(&data)
	if err != nil {
		return err
	}

	c.authToken = data["access_token"]
	c.userId = data["user_id"]

	return nil
}

func (c *ScriptInkClient) UserInfo() (services.UserInfo, error) {
	var info services.UserInfo
	err := c.Get("/user/info").Do(&info)
	return info, err
}

type NewScript struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	IsPublic  bool     `json:"isPublic"`
	AllowFork bool     `json:"allowFork"`
	Tags      []string `json:"tags"`
}

func (c *ScriptInkClient) CreateScript(script NewScript) (uuid.UUID, error) {
	var res idResponse
	err := c.Post("/scripts").Json(script).Do(&res)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create script: %w", err)
	}
	return res.Id, nil
}

func (c *ScriptInkClient) GetScript(scriptId uuid.UUID) (services.ScriptInfo, error) {
	var info services.ScriptInfo
	err := c.Get(fmt.Sprintf("/scripts/%v", scriptId)).Do(&info)
	return info, err
}

type ListOptions struct {
	Tag  string
	Mine bool
}

func (c *ScriptInkClient) ListScripts(opts ListOptions) ([]services.ScriptInfo, error) {
	req := c.Get("/scripts")
	if opts.Tag != "" {
		req = req.Param("tag", opts.Tag)
	}
	if opts.Mine {
		req = req.Param("mine", "true")
	}

	var scripts []services.ScriptInfo
	err := req.Do(&scripts)
	return scripts, err
}

// ScriptUpdate leaves fields that are nil unchanged.
type ScriptUpdate struct {
	Title     *string  `json:"title,omitempty"`
	Summary   *string  `json:"summary,omitempty"`
	IsPublic  *bool    `json:"isPublic,omitempty"`
	AllowFork *bool    `json:"allowFork,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func (c *ScriptInkClient) UpdateScript(scriptId uuid.UUID, update ScriptUpdate) error {
	return c.Put(fmt.Sprintf("/scripts/%v", scriptId)).Json(update).Do(nil)
}

func (c *ScriptInkClient) DeleteScript(scriptId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/scripts/%v", scriptId)).Do(nil)
}

func (c *ScriptInkClient) ListTags() ([]core.TagCount, error) {
	var tags []core.TagCount
	err := c.Get("/tags").Do(&tags)
	return tags, err
}

func (c *ScriptInkClient) Fork(scriptId uuid.UUID) (uuid.UUID, error) {
	var res idResponse
	err := c.Post(fmt.Sprintf("/scripts/%v/fork", scriptId)).Do(&res)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to fork script: %w", err)
	}
	return res.Id, nil
}

func (c *ScriptInkClient) Lineage(scriptId uuid.UUID) (lineage.Lineage, error) {
	var res lineage.Lineage
	err := c.Get(fmt.Sprintf("/scripts/%v/lineage", scriptId)).Do(&res)
	return res, err
}

func (c *ScriptInkClient) ListEntities(scriptId uuid.UUID) ([]services.EntityInfo, error) {
	var res []services.EntityInfo
	err := c.Get(fmt.Sprintf("/scripts/%v/entities", scriptId)).Do(&res)
	return res, err
}

type EntityUpdate struct {
	Kind      string                 `json:"kind"`
	Title     string                 `json:"title"`
	Content   interface{}            `json:"content,omitempty"`
	Props     map[string]interface{} `json:"props,omitempty"`
	SortOrder *int                   `json:"sortOrder,omitempty"`
}

func (c *ScriptInkClient) UpsertEntity(scriptId, entityId uuid.UUID, update EntityUpdate) (services.EntityInfo, error) {
	var res services.EntityInfo
	err := c.Put(fmt.Sprintf("/scripts/%v/entities/%v", scriptId, entityId)).Json(update).Do(&res)
	return res, err
}

func (c *ScriptInkClient) DeleteEntity(scriptId, entityId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/scripts/%v/entities/%v", scriptId, entityId)).Do(nil)
}

func (c *ScriptInkClient) CreateMergeRequest(targetId, sourceId uuid.UUID, summary string) (uuid.UUID, error) {
	body := map[string]interface{}{"sourceScriptId": sourceId, "summary": summary}

	var res idResponse
	err := c.Post(fmt.Sprintf("/scripts/%v/merge-requests", targetId)).Json(body).Do(&res)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create merge request: %w", err)
	}
	return res.Id, nil
}

func (c *ScriptInkClient) ListMergeRequests(scriptId uuid.UUID) ([]core.MergeRequestInfo, error) {
	var res struct {
		Requests []core.MergeRequestInfo `json:"requests"`
	}
	err := c.Get(fmt.Sprintf("/scripts/%v/merge-requests", scriptId)).Do(&res)
	return res.Requests, err
}

func (c *ScriptInkClient) GetMergeRequest(requestId uuid.UUID) (core.MergeRequestInfo, error) {
	var res core.MergeRequestInfo
	err := c.Get(fmt.Sprintf("/merge-requests/%v", requestId)).Do(&res)
	return res, err
}

func (c *ScriptInkClient) SetMergeRequestStatus(requestId uuid.UUID, status string) error {
	return c.Put(fmt.Sprintf("/merge-requests/%v", requestId)).Json(map[string]string{"status": status}).Do(nil)
}

// GetTruthLock returns nil when the script has no locked truth.
func (c *ScriptInkClient) GetTruthLock(scriptId uuid.UUID) (*services.TruthLockInfo, error) {
	var res *services.TruthLockInfo
	err := c.Get(fmt.Sprintf("/scripts/%v/truth-lock", scriptId)).Do(&res)
	return res, err
}

func (c *ScriptInkClient) LockTruth(scriptId uuid.UUID, truth string) (uuid.UUID, error) {
	var res idResponse
	err := c.Post(fmt.Sprintf("/scripts/%v/truth-lock", scriptId)).Json(map[string]string{"truth": truth}).Do(&res)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to lock truth: %w", err)
	}
	return res.Id, nil
}

func (c *ScriptInkClient) UploadCover(scriptId uuid.UUID, contentType string, image []byte) error {
	return c.Post(fmt.Sprintf("/scripts/%v/cover", scriptId)).
		Header("Content-Type", contentType).
		Body(bytes.NewReader(image)).
		Do(nil)
}

// DownloadCover returns the image bytes and their content type.
func (c *ScriptInkClient) DownloadCover(scriptId uuid.UUID) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := c.Get(fmt.Sprintf("/scripts/%v/cover", scriptId)).Process(func(res *http.Response) error {
		contentType = res.Header.Get("Content-Type")
		var err error
		data, err = io.ReadAll(res.Body)
		return err
	})
	return data, contentType, err
}

// Assist requests suggestions for the script, or for a single entity when
// entityId is set. Nothing is applied to the script.
func (c *ScriptInkClient) Assist(scriptId uuid.UUID, instruction string, entityId *uuid.UUID) (assist.ChangeSet, error) {
	body := map[string]interface{}{"instruction": instruction}
	if entityId != nil {
		body["entityId"] = *entityId
	}

	var res assist.ChangeSet
	err := c.Post(fmt.Sprintf("/scripts/%v/assist", scriptId)).Json(body).Do(&res)
	return res, err
}
