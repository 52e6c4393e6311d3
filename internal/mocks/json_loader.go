// Package mocks implements a disconnected, JSON-fixture-backed DataStore for
// local development and tests that should not require a live Postgres
// instance. The loader shape — read a named JSON file under a configured
// base path, tolerate a missing optional file, fail loudly on a malformed
// one — is carried from the teacher's own internal/mocks/json_loader.go.
package mocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"screenforge/internal/store"
)

type jsonDataLoader struct {
	basePath string
}

func newJSONDataLoader(basePath string) *jsonDataLoader {
	return &jsonDataLoader{basePath: basePath}
}

func (j *jsonDataLoader) loadJSONFile(filename string, target any, required bool) error {
	filePath := filepath.Join(j.basePath, filename)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("mocks: read %s: %w", filePath, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("mocks: unmarshal %s: %w", filePath, err)
	}
	return nil
}

func (j *jsonDataLoader) loadInstruments() ([]store.Instrument, error) {
	var out []store.Instrument
	err := j.loadJSONFile("instruments.json", &out, false)
	return out, err
}

func (j *jsonDataLoader) loadQuotes() ([]store.Quote, error) {
	var out []store.Quote
	err := j.loadJSONFile("quotes.json", &out, false)
	return out, err
}

func (j *jsonDataLoader) loadFundamentals() ([]store.Fundamentals, error) {
	var out []store.Fundamentals
	err := j.loadJSONFile("fundamentals.json", &out, false)
	return out, err
}

func (j *jsonDataLoader) loadAlerts() ([]store.AlertSubscription, error) {
	var out []store.AlertSubscription
	err := j.loadJSONFile("alerts.json", &out, false)
	return out, err
}
