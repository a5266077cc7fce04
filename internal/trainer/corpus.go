package trainer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Corpus is one YAML training file: categories become tags on every
// statement of its conversations.
type Corpus struct {
	Categories    []string   `yaml:"categories"`
	Conversations [][]string `yaml:"conversations"`
	Path          string     `yaml:"-"`
}

// LoadCorpus reads corpus files. Each path may be a file or a directory,
// which is walked for *.yml and *.yaml files. Missing paths are skipped.
func LoadCorpus(paths ...string) ([]Corpus, error) {
	var out []Corpus
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat corpus %s: %w", p, err)
		}

		if !info.IsDir() {
			c, err := readCorpus(p)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
			continue
		}

		var files []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			ext := strings.ToLower(filepath.Ext(path))
			if !d.IsDir() && (ext == ".yml" || ext == ".yaml") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk corpus dir %s: %w", p, err)
		}
		slices.Sort(files)
		for _, f := range files {
			c, err := readCorpus(f)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func readCorpus(path string) (Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Corpus{}, fmt.Errorf("read corpus %s: %w", path, err)
	}
	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Corpus{}, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	c.Path = path
	return c, nil
}
