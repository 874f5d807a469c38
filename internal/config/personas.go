package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"persona-chat-relay/internal/domain"
)

const (
	defaultModel       = "deepseek-reasoner"
	defaultMaxTokens   = 2000
	defaultTemperature = float32(0.8)
)

// PersonaSpec is one entry of the persona catalog file.
type PersonaSpec struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	ProfileFile string   `yaml:"profile_file"`
	Greeting    string   `yaml:"greeting"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float32 `yaml:"temperature"`
	APIKeyEnv   string   `yaml:"api_key_env"`
}

type personaDocument struct {
	Personas []PersonaSpec `yaml:"personas"`
}

// DefaultPersonaSpecs is the catalog used when no PERSONAS_FILE is set.
func DefaultPersonaSpecs() []PersonaSpec {
	return []PersonaSpec{
		{
			ID:          "girl",
			Name:        "小雨",
			ProfileFile: "char01.txt",
			Greeting:    "嗨~ 今天天气真好呢！你今天过得怎么样呀？",
		},
		{
			ID:          "boy",
			Name:        "陈阳",
			ProfileFile: "char.txt",
			Greeting:    "早上好。今天有点凉，出门记得多穿件衣服。",
		},
	}
}

// LoadPersonaSpecs reads the catalog file at path, or returns the defaults
// when path is empty. Missing fields are filled with defaults.
func LoadPersonaSpecs(path string) ([]PersonaSpec, error) {
	var specs []PersonaSpec
	if strings.TrimSpace(path) == "" {
		specs = DefaultPersonaSpecs()
	} else {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read persona catalog %q: %w", path, err)
		}
		var doc personaDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse persona catalog %q: %w", path, err)
		}
		if len(doc.Personas) == 0 {
			return nil, fmt.Errorf("persona catalog %q has no personas defined", path)
		}
		specs = doc.Personas
	}

	seen := make(map[string]bool, len(specs))
	out := make([]PersonaSpec, 0, len(specs))
	for idx, spec := range specs {
		normalized, err := normalizePersonaSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("personas[%d]: %w", idx, err)
		}
		if seen[normalized.ID] {
			return nil, fmt.Errorf("personas[%d]: duplicate id %q", idx, normalized.ID)
		}
		seen[normalized.ID] = true
		out = append(out, normalized)
	}
	return out, nil
}

func normalizePersonaSpec(spec PersonaSpec) (PersonaSpec, error) {
	spec.ID = strings.TrimSpace(spec.ID)
	spec.Name = strings.TrimSpace(spec.Name)
	spec.ProfileFile = strings.TrimSpace(spec.ProfileFile)
	if spec.ID == "" {
		return spec, errors.New("id is required")
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}
	spec.Greeting = strings.TrimSpace(spec.Greeting)
	if spec.Greeting == "" {
		spec.Greeting = fmt.Sprintf("你好，我是%s。", spec.Name)
	}
	if spec.ProfileFile == "" {
		return spec, fmt.Errorf("persona %q: profile_file is required", spec.ID)
	}
	if strings.TrimSpace(spec.Model) == "" {
		spec.Model = defaultModel
	}
	if spec.MaxTokens <= 0 {
		spec.MaxTokens = defaultMaxTokens
	}
	if spec.Temperature == nil {
		t := defaultTemperature
		spec.Temperature = &t
	}
	if strings.TrimSpace(spec.APIKeyEnv) == "" {
		spec.APIKeyEnv = "AI_API_KEY_" + strings.ToUpper(spec.ID)
	}
	return spec, nil
}

// LoadPersonas builds the relay's persona catalog. Every character profile
// is read here, once; a missing or empty profile aborts startup.
func LoadPersonas(cfg *Config) (*domain.PersonaCatalog, error) {
	specs, err := LoadPersonaSpecs(cfg.PersonasFile)
	if err != nil {
		return nil, err
	}

	personas := make([]domain.Persona, 0, len(specs))
	for _, spec := range specs {
		profile, err := readProfile(cfg.PersonaDir, spec.ProfileFile)
		if err != nil {
			return nil, fmt.Errorf("persona %q: %w", spec.ID, err)
		}
		apiKey := strings.TrimSpace(os.Getenv(spec.APIKeyEnv))
		if apiKey == "" {
			apiKey = cfg.APIKey
		}
		personas = append(personas, domain.Persona{
			ID:          spec.ID,
			Name:        spec.Name,
			Profile:     profile,
			Greeting:    spec.Greeting,
			Model:       spec.Model,
			MaxTokens:   spec.MaxTokens,
			Temperature: *spec.Temperature,
			APIKey:      apiKey,
		})
	}
	return domain.NewPersonaCatalog(personas...), nil
}

// LoadContacts returns the client-side view of the catalog. Profiles are not
// read.
func LoadContacts(path string) ([]domain.Contact, error) {
	specs, err := LoadPersonaSpecs(path)
	if err != nil {
		return nil, err
	}
	contacts := make([]domain.Contact, 0, len(specs))
	for _, spec := range specs {
		contacts = append(contacts, domain.Contact{ID: spec.ID, Name: spec.Name, Greeting: spec.Greeting})
	}
	return contacts, nil
}

func readProfile(dir, file string) (string, error) {
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, file)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read character profile %q: %w", file, err)
	}
	profile := strings.TrimSpace(string(data))
	if profile == "" {
		return "", fmt.Errorf("character profile %q is empty", file)
	}
	return profile, nil
}
