// Package kmitl fetches syllabi from the KMITL syllabus HTTP API.
package kmitl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

const Code = "KMITL"

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Adapter struct {
	client *resty.Client
	now    func() time.Time
}

func New(cfg Config) *Adapter {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Adapter{client: client, now: time.Now}
}

func (a *Adapter) Code() string { return Code }

type listResponse struct {
	Status int `json:"status"`
	Data   map[string]struct {
		Status int             `json:"status"`
		Data   json.RawMessage `json:"data"`
	} `json:"data"`
	Meta *source.Metadata `json:"meta"`
}

func (a *Adapter) FetchPage(ctx context.Context, req source.PageRequest) (*source.Page, error) {
	if req.Page < 1 || req.PageSize < 1 {
		return nil, retry.Permanent(fmt.Errorf("invalid input: page %d size %d", req.Page, req.PageSize))
	}

	params := map[string]string{
		"page":      strconv.Itoa(req.Page),
		"page_size": strconv.Itoa(req.PageSize),
	}
	if req.Year != "" {
		params["year"] = req.Year
	}
	if req.Term != "" {
		params["semester"] = req.Term
	}

	var body listResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		Get("/syllabus")
	if err != nil {
		return nil, fmt.Errorf("kmitl: fetch page %d: %w", req.Page, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
	case code == http.StatusBadRequest, code == http.StatusUnauthorized,
		code == http.StatusForbidden, code == http.StatusNotFound:
		return nil, retry.Permanent(fmt.Errorf("kmitl: page %d: status %d %s", req.Page, code, http.StatusText(code)))
	default:
		return nil, fmt.Errorf("kmitl: page %d: upstream status %d", req.Page, code)
	}

	if body.Status != 1 {
		return nil, fmt.Errorf("kmitl: page %d: unexpected response status %d", req.Page, body.Status)
	}

	ids := make([]string, 0, len(body.Data))
	for id := range body.Data {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	page := &source.Page{}
	for _, id := range ids {
		entry := body.Data[id]
		item, err := source.EncodeItem(id, entry.Status, entry.Data)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}

	if body.Meta != nil {
		page.Metadata = *body.Meta
	} else {
		// upstream without meta returns everything in one page
		page.Metadata = source.NewMetadata(len(ids), 1, max(len(ids), 1))
	}
	return page, nil
}

func (a *Adapter) Normalize(items []json.RawMessage, filters source.Filters) ([]entity.Syllabus, error) {
	return source.NormalizeItems(Code, items, filters, a.now())
}
