// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kavach/opsengine/pkg/core"
)

// Export is the root JSON structure written on Close.
type Export struct {
	ExportedAt time.Time             `json:"exportedAt"`
	Sites      map[string]SiteExport `json:"sites"`
}

// SiteExport holds one site's roster and history.
type SiteExport struct {
	Workers     []core.Worker        `json:"workers"`
	History     []core.HistoryRecord `json:"history"`
	Predictions []PredictionExport   `json:"predictions,omitempty"`
}

// PredictionExport is a predictor result with its inputs.
type PredictionExport struct {
	ID     string                 `json:"id"`
	Input  core.GeotechnicalInput `json:"input"`
	Result core.Prediction        `json:"result"`
}

// exportJSON writes every site to a JSON file, gzipped when configured.
// Must be called with the lock held.
func (b *Backend) exportJSON() error {
	now := time.Now().UTC()
	export := b.buildExport(now)

	filename := fmt.Sprintf("opsengine_%s.json", now.Format("20060102_150405"))
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport(now time.Time) Export {
	export := Export{
		ExportedAt: now,
		Sites:      make(map[string]SiteExport, len(b.sites)),
	}
	for id, s := range b.sites {
		se := SiteExport{
			Workers: make([]core.Worker, 0, len(s.workers)),
			History: make([]core.HistoryRecord, 0, len(s.history)),
		}
		for _, w := range s.workers {
			se.Workers = append(se.Workers, w)
		}
		sort.Slice(se.Workers, func(i, j int) bool { return se.Workers[i].ID < se.Workers[j].ID })
		for _, pr := range s.history {
			se.History = append(se.History, pr.Record)
			if pr.Result != nil && pr.Input != nil {
				se.Predictions = append(se.Predictions, PredictionExport{
					ID:     pr.Record.ID,
					Input:  *pr.Input,
					Result: *pr.Result,
				})
			}
		}
		export.Sites[id] = se
	}
	return export
}

func writeJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}
