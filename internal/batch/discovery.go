package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/utils"
)

// DefaultIncludePatterns matches the upload formats the decoder accepts.
var DefaultIncludePatterns = func() []string {
	out := make([]string, 0, len(utils.SupportedImageExtensions))
	for _, ext := range utils.SupportedImageExtensions {
		out = append(out, "*"+ext)
	}
	return out
}()

// discoverFiles finds all document files matching the given patterns.
func discoverFiles(args []string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	if len(includePatterns) == 0 {
		includePatterns = DefaultIncludePatterns
	}
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			files, err := discoverInDirectory(arg, recursive, includePatterns, excludePatterns)
			if err != nil {
				return nil, err
			}
			out = append(out, files...)
		} else if shouldIncludeFile(arg, includePatterns, excludePatterns) {
			out = append(out, arg)
		}
	}
	return out, nil
}

// discoverInDirectory walks a directory, descending only when recursive.
func discoverInDirectory(dir string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	var files []string
	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldIncludeFile(path, includePatterns, excludePatterns) {
			files = append(files, path)
		}
		return nil
	}
	if err := filepath.WalkDir(dir, walkFn); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// shouldIncludeFile keeps decodable formats only, then applies exclude
// patterns before include patterns.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if !utils.IsSupportedImage(path) {
		return false
	}
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return true
	}
	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern matches the base name case-insensitively.
func matchesAnyPattern(path string, patterns []string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(strings.ToLower(pattern), base); matched {
			return true
		}
	}
	return false
}

// InferDocumentType reads the document type from a file name prefix, so
// "utility-bill_2026-03.pdf" is a UTILITY_BILL. The longest known type wins.
func InferDocumentType(path string, known []domain.DocumentType) (domain.DocumentType, bool) {
	base := strings.ToLower(filepath.Base(path))
	base = strings.NewReplacer("-", "_", " ", "_").Replace(base)

	var best domain.DocumentType
	for _, t := range known {
		prefix := strings.ToLower(string(t))
		if !strings.HasPrefix(base, prefix) {
			continue
		}
		if rest := base[len(prefix):]; rest != "" && rest[0] != '_' && rest[0] != '.' {
			continue
		}
		if len(t) > len(best) {
			best = t
		}
	}
	return best, best != ""
}

// customerFor returns the customer a file belongs to: the fixed customer when
// set, otherwise the parent directory name.
func customerFor(path, fixed string) string {
	if fixed != "" {
		return fixed
	}
	return filepath.Base(filepath.Dir(path))
}
