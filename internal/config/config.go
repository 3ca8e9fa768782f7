// Package config provides configuration loading and structs for the Margot
// pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file location checked when none is given.
const DefaultPath = "/usr/local/etc/margot/config.yaml"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Intake    IntakeConfig    `yaml:"intake"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Oracle    OracleConfig    `yaml:"oracle"`
	OCR       OCRConfig       `yaml:"ocr"`
	Facsimile FacsimileConfig `yaml:"facsimile"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// IntakeConfig holds scan directory watch settings.
type IntakeConfig struct {
	ScanDir    string   `yaml:"scan_dir"`
	Extensions []string `yaml:"extensions"`
}

// ArchiveConfig holds the document store paths.
type ArchiveConfig struct {
	Dir         string `yaml:"dir"`
	JournalPath string `yaml:"journal_path"`
}

// OracleConfig holds the classification endpoint settings. The API key can
// also come from the MARGOT_ORACLE_API_KEY environment variable, which wins
// over the file.
type OracleConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	TimeoutS int    `yaml:"timeout_s"`
}

// OCRConfig holds the external OCR tool settings.
type OCRConfig struct {
	Tesseract string `yaml:"tesseract"`
	Pdftoppm  string `yaml:"pdftoppm"`
	Language  string `yaml:"language"`
	DPI       int    `yaml:"dpi"`
	WorkDir   string `yaml:"work_dir"`
}

// FacsimileConfig holds the transmittal sheet strings. Empty fields fall
// back to the stock strings.
type FacsimileConfig struct {
	RecipientName    string `yaml:"recipient_name"`
	RecipientAddress string `yaml:"recipient_address"`
	RecipientCity    string `yaml:"recipient_city"`
	SenderName       string `yaml:"sender_name"`
	SenderTitle      string `yaml:"sender_title"`
	SenderFax        string `yaml:"sender_fax"`
	SenderPhone      string `yaml:"sender_phone"`
	SubjectPrefix    string `yaml:"subject_prefix"`
	ClosingLine      string `yaml:"closing_line"`
	Flair            string `yaml:"flair"`
}

// Load reads and parses the config file at path, expands paths, applies
// defaults, and resolves the API key environment override.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Intake.ScanDir = expandPath(cfg.Intake.ScanDir, configDir)
	cfg.Archive.Dir = expandPath(cfg.Archive.Dir, configDir)
	cfg.Archive.JournalPath = expandPath(cfg.Archive.JournalPath, configDir)
	if cfg.OCR.WorkDir != "" {
		cfg.OCR.WorkDir = expandPath(cfg.OCR.WorkDir, configDir)
	}

	if key := os.Getenv("MARGOT_ORACLE_API_KEY"); key != "" {
		cfg.Oracle.APIKey = key
	}
	return &cfg, nil
}

// Resolve returns the config path to use: the explicit one when given, the
// default location when it exists, otherwise config.yaml in the working
// directory.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return "config.yaml"
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
