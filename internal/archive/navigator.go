package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// allowedSubfolders are the only per-document folders servable over the API.
var allowedSubfolders = map[string]bool{
	subfolderScans:    true,
	subfolderPreviews: true,
	subfolderLogs:     true,
}

// ListSenders returns the sender folder names, sorted.
func (a *Archive) ListSenders() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive dir: %w", err)
	}
	var senders []string
	for _, e := range entries {
		if e.IsDir() {
			senders = append(senders, e.Name())
		}
	}
	sort.Strings(senders)
	return senders, nil
}

// ListDocuments returns the document ids archived for one sender, sorted.
func (a *Archive) ListDocuments(sender string) ([]string, error) {
	dir, err := a.senderDir(sender)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sender dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Markdown returns the markdown rendition of one document.
func (a *Archive) Markdown(sender, id string) (string, error) {
	dir, err := a.safeDocDir(sender, id)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(dir, id+".md"))
	if err != nil {
		return "", fmt.Errorf("read markdown: %w", err)
	}
	return string(raw), nil
}

// OriginalScans lists the absolute paths of the document's original scans,
// in stored order.
func (a *Archive) OriginalScans(sender, id string) ([]string, error) {
	return a.listSubfolder(sender, id, subfolderScans)
}

// Previews lists the absolute paths of the document's page previews.
func (a *Archive) Previews(sender, id string) ([]string, error) {
	return a.listSubfolder(sender, id, subfolderPreviews)
}

// InteractionLogs lists the absolute paths of the document's oracle logs.
func (a *Archive) InteractionLogs(sender, id string) ([]string, error) {
	return a.listSubfolder(sender, id, subfolderLogs)
}

func (a *Archive) listSubfolder(sender, id, subfolder string) ([]string, error) {
	dir, err := a.safeDocDir(sender, id)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, subfolder))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", subfolder, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(dir, subfolder, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// FilePath resolves one servable file inside a document folder. The
// subfolder must be on the allowlist and no path component may escape the
// document directory.
func (a *Archive) FilePath(sender, id, subfolder, filename string) (string, error) {
	if !allowedSubfolders[subfolder] {
		return "", fmt.Errorf("subfolder %q not servable", subfolder)
	}
	dir, err := a.safeDocDir(sender, id)
	if err != nil {
		return "", err
	}
	if err := checkComponent(filename); err != nil {
		return "", err
	}
	path := filepath.Join(dir, subfolder, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file %s: %w", filename, err)
	}
	return path, nil
}

// safeDocDir validates sender and id as single path components and returns
// the document directory, which must exist.
func (a *Archive) safeDocDir(sender, id string) (string, error) {
	if err := checkComponent(sender); err != nil {
		return "", err
	}
	if err := checkComponent(id); err != nil {
		return "", err
	}
	dir := filepath.Join(a.dir, sender, id)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("document %s/%s not found", sender, id)
	}
	return dir, nil
}

func (a *Archive) senderDir(sender string) (string, error) {
	if err := checkComponent(sender); err != nil {
		return "", err
	}
	return filepath.Join(a.dir, sender), nil
}

func checkComponent(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid path component %q", name)
	}
	return nil
}
