package utils

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// FirstPDFImage extracts the embedded images of a PDF with pdfcpu and returns
// the first one in page order. Scanned documents carry exactly one image per
// page, so this is the scan of the first page.
func FirstPDFImage(data []byte) (image.Image, error) {
	tempDir, err := os.MkdirTemp("", "kycscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	src := filepath.Join(tempDir, "upload.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to stage PDF: %w", err)
	}
	outDir := filepath.Join(tempDir, "images")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	if err := api.ExtractImagesFile(src, outDir, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	pages, err := collectExtractedImages(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	if len(pages) == 0 {
		return nil, errors.New("PDF contains no decodable images")
	}
	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return pages[nums[0]][0], nil
}

// collectExtractedImages groups extracted images by page number. pdfcpu names
// them <file>_<page>_<obj>.<ext> or page_<page>_image_<idx>.<ext> depending on
// version; names sort so the first image of a page comes first.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := make(map[int][]image.Image)
	for _, name := range names {
		page, err := parsePageFromFilename(name)
		if err != nil {
			continue
		}
		img, err := loadImageFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		result[page] = append(result[page], img)
	}
	return result, nil
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path is inside our own temp directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}

// parsePageFromFilename extracts the page number from a pdfcpu image file name.
func parsePageFromFilename(filename string) (int, error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}
	if parts[0] == "page" {
		return strconv.Atoi(parts[1])
	}
	// <file>_<page>_<obj>: the page is the second to last element.
	if len(parts) >= 3 {
		if n, err := strconv.Atoi(parts[len(parts)-2]); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("not a page image")
}
