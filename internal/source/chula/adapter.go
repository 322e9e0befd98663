// Package chula reads syllabi from the Chulalongkorn "list by year/semester" JSON export.
package chula

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

const Code = "CHULA"

// export is the file layout: {"data": {"<course id>": {"data": {...document...}}}}.
type export struct {
	Data map[string]struct {
		Status *int            `json:"status"`
		Data   json.RawMessage `json:"data"`
	} `json:"data"`
}

type Adapter struct {
	path string
	now  func() time.Time
}

func New(path string) *Adapter {
	return &Adapter{path: path, now: time.Now}
}

func (a *Adapter) Code() string { return Code }

// FetchPage reads the export and slices it in course-id order.
func (a *Adapter) FetchPage(ctx context.Context, req source.PageRequest) (*source.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Page < 1 {
		return nil, retry.Permanent(fmt.Errorf("invalid input: page %d", req.Page))
	}
	if req.PageSize < 1 {
		return nil, retry.Permanent(fmt.Errorf("invalid input: page size %d", req.PageSize))
	}

	b, err := os.ReadFile(a.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, retry.Permanent(fmt.Errorf("chula: syllabus export not found at %s", a.path))
		}
		return nil, fmt.Errorf("chula: read export: %w", err)
	}

	var doc export
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, retry.Permanent(fmt.Errorf("chula: invalid input: %w", err))
	}

	ids := make([]string, 0, len(doc.Data))
	for id := range doc.Data {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	meta := source.NewMetadata(len(ids), req.Page, req.PageSize)
	start := (req.Page - 1) * req.PageSize
	end := min(start+req.PageSize, len(ids))

	page := &source.Page{Metadata: meta}
	for _, id := range ids[min(start, len(ids)):end] {
		entry := doc.Data[id]
		status := 1
		if entry.Status != nil {
			status = *entry.Status
		}
		item, err := source.EncodeItem(id, status, entry.Data)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (a *Adapter) Normalize(items []json.RawMessage, filters source.Filters) ([]entity.Syllabus, error) {
	return source.NormalizeItems(Code, items, filters, a.now())
}
