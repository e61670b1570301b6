package notespipe

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/platebook/importer-backend/internal/errs"
)

// Image payloads larger than this are refused outright.
const maxImageBytes = 20 << 20

var imageClient = &http.Client{Timeout: 30 * time.Second}

var mimeExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// materializeImage turns one image reference from the note HTML into a local
// file under dir. Data URIs are decoded in place; remote URLs are fetched,
// with relative srcs resolved against baseURL.
func materializeImage(ctx context.Context, dir, baseURL, name, ref string) (string, error) {
	if strings.HasPrefix(ref, "data:") {
		return writeDataURI(dir, name, ref)
	}
	return downloadImage(ctx, dir, baseURL, name, ref)
}

func writeDataURI(dir, name, ref string) (string, error) {
	head, payload, ok := strings.Cut(ref, ",")
	if !ok {
		return "", errs.New(errs.TypeParsing, errs.SeverityMedium, "malformed data URI")
	}
	meta := strings.TrimPrefix(head, "data:")
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return "", errs.New(errs.TypeParsing, errs.SeverityMedium, "data URI is not base64")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", errs.FatalWrap(err, errs.TypeParsing, "decode data URI")
	}
	if len(raw) > maxImageBytes {
		return "", errs.New(errs.TypeValidation, errs.SeverityMedium, "embedded image too large")
	}

	ext, ok := mimeExt[strings.ToLower(mime)]
	if !ok {
		ext = ".img"
	}
	path := filepath.Join(dir, name+ext)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", errs.Wrap(err, errs.TypeWorker, errs.SeverityHigh, "write embedded image")
	}
	return path, nil
}

func downloadImage(ctx context.Context, dir, baseURL, name, ref string) (string, error) {
	target, err := resolveImageURL(baseURL, ref)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", errs.Wrap(err, errs.TypeNetwork, errs.SeverityMedium, "build image request")
	}
	resp, err := imageClient.Do(req)
	if err != nil {
		return "", errs.Wrap(err, errs.TypeNetwork, errs.SeverityMedium, "fetch image")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errs.New(errs.TypeNetwork, errs.SeverityMedium,
			fmt.Sprintf("fetch image: status %d", resp.StatusCode))
	}

	ext := mimeExt[strings.ToLower(strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]))]
	if ext == "" {
		if e := filepath.Ext(target); e != "" && len(e) <= 5 {
			ext = e
		} else {
			ext = ".img"
		}
	}

	path := filepath.Join(dir, name+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", errs.Wrap(err, errs.TypeWorker, errs.SeverityHigh, "create image file")
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxImageBytes+1))
	closeErr := f.Close()
	if err != nil {
		return "", errs.Wrap(err, errs.TypeNetwork, errs.SeverityMedium, "read image body")
	}
	if closeErr != nil {
		return "", errs.Wrap(closeErr, errs.TypeWorker, errs.SeverityHigh, "flush image file")
	}
	if n > maxImageBytes {
		_ = os.Remove(path)
		return "", errs.New(errs.TypeValidation, errs.SeverityMedium, "image too large")
	}
	return path, nil
}

func resolveImageURL(baseURL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", errs.FatalWrap(err, errs.TypeParsing, "parse image url")
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if baseURL == "" {
		return "", errs.New(errs.TypeValidation, errs.SeverityMedium,
			"relative image url and no base url configured")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", errs.FatalWrap(err, errs.TypeParsing, "parse image base url")
	}
	return base.ResolveReference(u).String(), nil
}
