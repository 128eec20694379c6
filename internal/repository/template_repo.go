package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/novapush/dispatcher/internal/domain"
	"gorm.io/gorm"
)

// TemplateRepository is the read contract the engine consumes; template
// CRUD lives outside this service.
type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Template, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: template id is required", domain.ErrValidation)
	}

	var model TemplateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", strings.TrimSpace(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return templateModelToDomain(&model), nil
}
