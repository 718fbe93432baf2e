package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/transport"
	"github.com/gofiber/fiber/v2"
)

type fakeTemplateRepo struct {
	records map[string]*domain.TemplateRecord
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{records: map[string]*domain.TemplateRecord{}}
}

func (f *fakeTemplateRepo) Create(ctx context.Context, t *domain.TemplateRecord) error {
	for _, existing := range f.records {
		if existing.TemplateName == t.TemplateName && existing.Locale == t.Locale {
			return domain.ErrConflict
		}
	}
	copied := *t
	f.records[t.ID] = &copied
	return nil
}

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id string) (*domain.TemplateRecord, error) {
	if r, ok := f.records[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTemplateRepo) FindByNameAndLocale(ctx context.Context, name, locale string) (*domain.TemplateRecord, error) {
	for _, r := range f.records {
		if r.TemplateName == name && r.Locale == locale {
			copied := *r
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTemplateRepo) List(ctx context.Context) ([]domain.TemplateRecord, error) {
	out := make([]domain.TemplateRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeTemplateRepo) Update(ctx context.Context, t *domain.TemplateRecord) error {
	if _, ok := f.records[t.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *t
	f.records[t.ID] = &copied
	return nil
}

func (f *fakeTemplateRepo) Delete(ctx context.Context, id string) (*domain.TemplateRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(f.records, id)
	return r, nil
}

type invalidation struct{ name, locale string }

type fakeInvalidator struct {
	calls []invalidation
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, name, locale string) {
	f.calls = append(f.calls, invalidation{name: name, locale: locale})
}

func newTemplateApp(repo *fakeTemplateRepo, cache *fakeInvalidator) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: transport.NewErrorHandler(nil)})
	h := NewTemplateHandler(repo, cache, nil)
	app.Post("/v1/templates", h.Create)
	app.Get("/v1/templates", h.List)
	app.Get("/v1/templates/:id", h.Get)
	app.Put("/v1/templates/:id", h.Update)
	app.Delete("/v1/templates/:id", h.Delete)
	return app
}

func createTemplate(t *testing.T, app *fiber.App, name, locale, content string) map[string]any {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{
		"templateName": name,
		"locale":       locale,
		"content":      content,
	})
	req := httptest.NewRequest("POST", "/v1/templates", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body
}

func TestTemplateCreateAndInvalidate(t *testing.T) {
	t.Parallel()

	repo := newFakeTemplateRepo()
	cache := &fakeInvalidator{}
	app := newTemplateApp(repo, cache)

	body := createTemplate(t, app, "email/welcome", "en", "<p>{{.name}}</p>")
	if body["templateName"] != "email/welcome" || body["active"] != true {
		t.Fatalf("body = %v", body)
	}

	if len(cache.calls) != 1 || cache.calls[0] != (invalidation{"email/welcome", "en"}) {
		t.Fatalf("invalidations = %v", cache.calls)
	}
}

func TestTemplateCreateRejectsBadSyntax(t *testing.T) {
	t.Parallel()

	app := newTemplateApp(newFakeTemplateRepo(), &fakeInvalidator{})

	raw, _ := json.Marshal(map[string]any{
		"templateName": "email/broken",
		"locale":       "en",
		"content":      "{{.name",
	})
	req := httptest.NewRequest("POST", "/v1/templates", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTemplateCreateConflict(t *testing.T) {
	t.Parallel()

	app := newTemplateApp(newFakeTemplateRepo(), &fakeInvalidator{})
	createTemplate(t, app, "email/welcome", "en", "a")

	raw, _ := json.Marshal(map[string]any{
		"templateName": "email/welcome",
		"locale":       "en",
		"content":      "b",
	})
	req := httptest.NewRequest("POST", "/v1/templates", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestTemplateUpdateAndDelete(t *testing.T) {
	t.Parallel()

	repo := newFakeTemplateRepo()
	cache := &fakeInvalidator{}
	app := newTemplateApp(repo, cache)

	created := createTemplate(t, app, "email/welcome", "en", "v1")
	id, _ := created["id"].(string)

	raw, _ := json.Marshal(map[string]any{"content": "v2", "active": false})
	req := httptest.NewRequest("PUT", "/v1/templates/"+id, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	stored := repo.records[id]
	if stored.Content != "v2" || stored.Active {
		t.Fatalf("stored = %+v", stored)
	}

	req = httptest.NewRequest("DELETE", "/v1/templates/"+id, nil)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if len(repo.records) != 0 {
		t.Fatal("record should be gone")
	}

	// create + update + delete each invalidate the cache once
	if len(cache.calls) != 3 {
		t.Fatalf("invalidations = %d, want 3", len(cache.calls))
	}
}
