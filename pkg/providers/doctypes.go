package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
)

// DocType configures one document type: which provider template processes it,
// where uploads land, and which extracted field names the business identifier.
// New document types are configuration, not code.
type DocType struct {
	Type            string `json:"type" yaml:"type"`
	TemplateID      string `json:"template_id" yaml:"template_id"`
	FolderID        string `json:"folder_id" yaml:"folder_id"`
	IdentifierField string `json:"identifier_field" yaml:"identifier_field"`
}

type docTypesFile struct {
	DocumentTypes []DocType `json:"document_types" yaml:"document_types"`
}

// DocTypeRegistry materializes document type definitions loaded from config files.
type DocTypeRegistry struct {
	mu    sync.RWMutex
	types []DocType
	idx   map[string]DocType
}

// LoadDocTypes loads the document type registry from a YAML/JSON file.
func LoadDocTypes(path string) (*DocTypeRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("doctypes file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open doctypes file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read doctypes file: %w", err)
	}

	parsed, err := parseDocTypes(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.DocumentTypes) == 0 {
		return nil, errors.New("doctypes file contains no document_types entries")
	}

	reg := &DocTypeRegistry{idx: make(map[string]DocType, len(parsed.DocumentTypes))}
	for i := range parsed.DocumentTypes {
		dt := sanitizeDocType(parsed.DocumentTypes[i])
		if err := validateDocType(dt); err != nil {
			return nil, fmt.Errorf("document_types[%d]: %w", i, err)
		}
		if _, exists := reg.idx[dt.Type]; exists {
			return nil, fmt.Errorf("duplicate document type %q", dt.Type)
		}
		reg.types = append(reg.types, dt)
		reg.idx[dt.Type] = dt
	}

	return reg, nil
}

// parseDocTypes attempts to decode the doctypes file content.
func parseDocTypes(data []byte, ext string) (docTypesFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var parsed docTypesFile
		if err := d.fn(data, &parsed); err == nil {
			return parsed, nil
		}
	}

	return docTypesFile{}, errors.New("doctypes file format not recognized (expected YAML or JSON)")
}

func sanitizeDocType(dt DocType) DocType {
	dt.Type = strings.TrimSpace(dt.Type)
	dt.TemplateID = strings.TrimSpace(dt.TemplateID)
	dt.FolderID = strings.TrimSpace(dt.FolderID)
	dt.IdentifierField = strings.TrimSpace(dt.IdentifierField)
	return dt
}

func validateDocType(dt DocType) error {
	if dt.Type == "" {
		return errors.New("type is required")
	}
	if dt.TemplateID == "" {
		return fmt.Errorf("template_id is required for document type %q", dt.Type)
	}
	return nil
}

// ByType returns the entry for the given document type, if configured.
func (r *DocTypeRegistry) ByType(docType string) (DocType, bool) {
	if r == nil {
		return DocType{}, false
	}

	docType = strings.TrimSpace(docType)
	if docType == "" {
		return DocType{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	dt, ok := r.idx[docType]
	return dt, ok
}

// All returns a copy of the configured document types.
func (r *DocTypeRegistry) All() []DocType {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DocType, len(r.types))
	copy(out, r.types)
	return out
}

// MergeMetadata folds the registry defaults for docType into the caller's
// metadata. Caller-supplied values win; the registry only fills gaps.
func (r *DocTypeRegistry) MergeMetadata(docType string, metadata map[string]string) map[string]string {
	merged := make(map[string]string, len(metadata)+3)
	for k, v := range metadata {
		merged[k] = v
	}

	dt, ok := r.ByType(docType)
	if !ok {
		return merged
	}

	fill := func(key, val string) {
		if strings.TrimSpace(merged[key]) == "" && val != "" {
			merged[key] = val
		}
	}
	fill(domain.MetaTemplateID, dt.TemplateID)
	fill(domain.MetaFolderID, dt.FolderID)
	fill(domain.MetaIdentifierField, dt.IdentifierField)

	return merged
}
