package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/recovery"
	"github.com/desertthunder/docdash/internal/shared"
	"github.com/desertthunder/docdash/internal/tasks"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// NewCatalog registers every built-in work function.
func NewCatalog(cfg *shared.Config, logger *log.Logger) *tasks.Catalog {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("component", "jobs")

	d := NewDownloader(cfg.Downloads, recovery.OptionsFromConfig(cfg.Retry), logger)
	catalog := tasks.NewCatalog()
	catalog.Register(models.KindFileProcessing, ProcessFiles(logger))
	catalog.Register(models.KindPDFDownload, d.Work(models.KindPDFDownload))
	catalog.Register(models.KindPlaylistDownload, d.Work(models.KindPlaylistDownload))
	catalog.Register(models.KindWebScraping, d.Work(models.KindWebScraping))
	return catalog
}

// decodeInput unmarshals raw into v and validates its struct tags.
func decodeInput(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}
