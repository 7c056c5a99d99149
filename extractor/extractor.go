// Package extractor collects site image URLs from a saved HTML page and
// writes them out as a sorted, de-duplicated URL list.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/chcolte/site-image-mirror/config"
	"github.com/chcolte/site-image-mirror/logger"
)

var (
	ErrUnknownParser = errors.New("unknown parser")
	ErrInvalidUTF8   = errors.New("input is not valid UTF-8")
)

var (
	imgSrcRe   = regexp.MustCompile(`<img[^>]*src="([^"]*)"`)
	styleURLRe = regexp.MustCompile(`url\('([^']*)'\)`)
)

// ReadHTML reads and decodes the page at path. The "utf-8" label is strict:
// invalid bytes are an error. An empty label or "auto" sniffs the encoding
// from the BOM and <meta> tags.
func ReadHTML(path, charsetLabel string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader
	label := strings.TrimSpace(charsetLabel)
	switch strings.ToLower(label) {
	case "utf-8", "utf8":
		b, err := io.ReadAll(f)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		// 壊れたバイトを置換文字にすると誤ったURLを取得してしまう
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%s: %w", path, ErrInvalidUTF8)
		}
		return string(b), nil
	case "", "auto":
		r, err = charset.NewReader(f, "text/html")
	default:
		r, err = charset.NewReaderLabel(label, f)
	}
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

// ExtractURLs returns the unique URLs in doc that start with imagePrefix,
// sorted ascending. The result is never nil.
func ExtractURLs(doc, imagePrefix, parser string) ([]string, error) {
	var candidates []string
	switch parser {
	case config.ParserRegex:
		candidates = matchRegex(doc)
	case config.ParserDOM:
		var err error
		if candidates, err = matchDOM(doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownParser, parser)
	}

	urls := make([]string, 0, len(candidates))
	for _, u := range candidates {
		if strings.HasPrefix(u, imagePrefix) {
			urls = append(urls, u)
		} else {
			logger.Debug("Ignoring off-site URL: ", u)
		}
	}
	slices.Sort(urls)
	return slices.Compact(urls), nil
}

func matchRegex(doc string) []string {
	var urls []string
	for _, re := range []*regexp.Regexp{imgSrcRe, styleURLRe} {
		for _, m := range re.FindAllStringSubmatch(doc, -1) {
			urls = append(urls, m[1])
		}
	}
	return urls
}

// matchDOM is the lenient variant: any img src regardless of quoting or tag
// case, plus url('...') inside style attributes and <style> blocks.
func matchDOM(doc string) ([]string, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var urls []string
	d.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			urls = append(urls, src)
		}
	})
	d.Find("[style]").Each(func(i int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, m := range styleURLRe.FindAllStringSubmatch(style, -1) {
			urls = append(urls, m[1])
		}
	})
	d.Find("style").Each(func(i int, s *goquery.Selection) {
		for _, m := range styleURLRe.FindAllStringSubmatch(s.Text(), -1) {
			urls = append(urls, m[1])
		}
	})
	return urls, nil
}

// WriteURLList replaces the file at path with one URL per line.
func WriteURLList(path string, urls []string) error {
	var buf bytes.Buffer
	for _, u := range urls {
		buf.WriteString(u)
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Run performs the whole extraction step and returns the number of URLs
// written. Nothing is written when the page cannot be read.
func Run(cfg *config.Config) (int, error) {
	doc, err := ReadHTML(cfg.InputHTML, cfg.InputCharset)
	if err != nil {
		return 0, err
	}
	logger.Debugf("Read %d bytes from %s", len(doc), cfg.InputHTML)

	urls, err := ExtractURLs(doc, cfg.ImagePrefix(), cfg.Parser)
	if err != nil {
		return 0, err
	}

	if err := WriteURLList(cfg.URLList, urls); err != nil {
		return 0, fmt.Errorf("write url list: %w", err)
	}
	return len(urls), nil
}
