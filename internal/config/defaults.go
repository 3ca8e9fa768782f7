package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Intake.ScanDir == "" {
		cfg.Intake.ScanDir = "/usr/local/var/margot/scans"
	}
	if cfg.Intake.Extensions == nil {
		cfg.Intake.Extensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".pdf"}
	}
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = "/usr/local/var/margot/archive"
	}
	if cfg.Archive.JournalPath == "" {
		cfg.Archive.JournalPath = "/usr/local/var/margot/journal.db"
	}
	if cfg.Oracle.BaseURL == "" {
		cfg.Oracle.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = "openai/gpt-4o"
	}
	if cfg.Oracle.TimeoutS == 0 {
		cfg.Oracle.TimeoutS = 120
	}
	if cfg.OCR.Tesseract == "" {
		cfg.OCR.Tesseract = "tesseract"
	}
	if cfg.OCR.Pdftoppm == "" {
		cfg.OCR.Pdftoppm = "pdftoppm"
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "eng"
	}
	if cfg.OCR.DPI == 0 {
		cfg.OCR.DPI = 300
	}
}
