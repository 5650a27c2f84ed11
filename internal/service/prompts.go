package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"threadhub/internal/db"
	"threadhub/internal/model"
)

const (
	defaultPromptCategory    = "general"
	defaultPromptListLimit   = 50
	defaultPromptSearchLimit = 20
)

type CreatePromptInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// UpdatePromptInput only changes the fields that are set.
type UpdatePromptInput struct {
	Description *string   `json:"description"`
	Content     *string   `json:"content"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
}

type PromptService struct {
	db *db.DB
}

func NewPromptService(d *db.DB) *PromptService {
	return &PromptService{db: d}
}

const promptColumns = `id, name, description, content, category, tags_json, created_at, updated_at`

func (s *PromptService) Create(ctx context.Context, in CreatePromptInput) (*model.PromptTemplate, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &model.ValidationError{Field: "name", Message: "is required"}
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, &model.ValidationError{Field: "content", Message: "is required"}
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = defaultPromptCategory
	}
	tags, err := encodeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	exists, err := s.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &model.ConflictError{Resource: "prompt template", ID: name}
	}

	now := nowUTC()
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO prompt_templates (`+promptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), name, in.Description, in.Content, category, tags, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert prompt template: %w", err)
	}
	return s.Get(ctx, name)
}

func (s *PromptService) Get(ctx context.Context, name string) (*model.PromptTemplate, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+promptColumns+` FROM prompt_templates WHERE name = ?`), name)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "prompt template", ID: name}
	}
	return p, err
}

// List returns templates, most recently updated first, optionally filtered
// by category.
func (s *PromptService) List(ctx context.Context, category string, limit int) ([]model.PromptTemplate, error) {
	if limit <= 0 {
		limit = defaultPromptListLimit
	}
	if category != "" {
		return s.query(ctx, `
			SELECT `+promptColumns+` FROM prompt_templates
			WHERE category = ?
			ORDER BY updated_at DESC LIMIT ?`, category, limit)
	}
	return s.query(ctx, `
		SELECT `+promptColumns+` FROM prompt_templates
		ORDER BY updated_at DESC LIMIT ?`, limit)
}

func (s *PromptService) Update(ctx context.Context, name string, in UpdatePromptInput) (*model.PromptTemplate, error) {
	var sets []string
	var args []any
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return nil, &model.ValidationError{Field: "content", Message: "must not be empty"}
		}
		sets = append(sets, "content = ?")
		args = append(args, *in.Content)
	}
	if in.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *in.Category)
	}
	if in.Tags != nil {
		tags, err := encodeTags(*in.Tags)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tags_json = ?")
		args = append(args, tags)
	}
	if len(sets) == 0 {
		return nil, &model.ValidationError{Message: "no fields to update"}
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, nowUTC(), name)

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE prompt_templates SET `+strings.Join(sets, ", ")+` WHERE name = ?`),
		args...)
	if err != nil {
		return nil, fmt.Errorf("update prompt template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &model.NotFoundError{Resource: "prompt template", ID: name}
	}
	return s.Get(ctx, name)
}

func (s *PromptService) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM prompt_templates WHERE name = ?`), name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &model.NotFoundError{Resource: "prompt template", ID: name}
	}
	return nil
}

// Search matches query as a substring of name, description, content or tags.
func (s *PromptService) Search(ctx context.Context, query string, limit int) ([]model.PromptTemplate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &model.ValidationError{Field: "q", Message: "is required"}
	}
	if limit <= 0 {
		limit = defaultPromptSearchLimit
	}
	term := "%" + likeEscaper.Replace(query) + "%"
	return s.query(ctx, `
		SELECT `+promptColumns+` FROM prompt_templates
		WHERE name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'
			OR content LIKE ? ESCAPE '\' OR tags_json LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC LIMIT ?`, term, term, term, term, limit)
}

// likeEscaper makes LIKE wildcards in a search query match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Categories returns the distinct non-empty categories in sorted order.
func (s *PromptService) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM prompt_templates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		if c != "" {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, rows.Err()
}

// Render substitutes every `{key}` placeholder with its value. Keys are
// applied in sorted order so the result does not depend on map iteration.
func (s *PromptService) Render(ctx context.Context, name string, vars map[string]string) (*model.RenderedPrompt, error) {
	p, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return RenderTemplate(p, vars), nil
}

func RenderTemplate(p *model.PromptTemplate, vars map[string]string) *model.RenderedPrompt {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	content := p.Content
	for _, k := range keys {
		content = strings.ReplaceAll(content, "{"+k+"}", vars[k])
	}
	return &model.RenderedPrompt{Name: p.Name, Content: content, VariablesUsed: keys}
}

func (s *PromptService) exists(ctx context.Context, name string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT COUNT(1) FROM prompt_templates WHERE name = ?`), name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *PromptService) query(ctx context.Context, q string, args ...any) ([]model.PromptTemplate, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.PromptTemplate{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPrompt(row rowScanner) (*model.PromptTemplate, error) {
	var p model.PromptTemplate
	var tags string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Content, &p.Category, &tags, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", p.Name, err)
		}
	}
	return &p, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}
