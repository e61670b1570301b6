package services

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/objstore"
)

// Derivative geometry. The original derivative is a downscale-only fit; the
// crops cover their target box and trim the overflow around the center.
const (
	originalMaxEdge = 1600

	thumbnailSize = 320

	crop3x2Width  = 1200
	crop3x2Height = 800

	crop4x3Width  = 1200
	crop4x3Height = 900

	crop16x9Width  = 1200
	crop16x9Height = 675
)

// DerivativeFile is one rendered output on local disk.
type DerivativeFile struct {
	Name string
	Path string
	Size int64
}

// MediaResult is everything the pipeline needs after rendering: the five
// derivative files and the source image's intrinsic metadata.
type MediaResult struct {
	Derivatives map[string]DerivativeFile
	Width       int
	Height      int
	Format      string
}

// MediaProcessor renders the derivative set for one source image.
type MediaProcessor interface {
	Process(ctx context.Context, srcPath, outDir, baseName string) (*MediaResult, error)
}

type mediaProcessor struct {
	log *logger.Logger
}

func NewMediaProcessor(log *logger.Logger) MediaProcessor {
	return &mediaProcessor{log: log.With("service", "MediaProcessor")}
}

func (p *mediaProcessor) Process(ctx context.Context, srcPath, outDir, baseName string) (*MediaResult, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, errs.FatalWrap(err, errs.TypeParsing, "open source image")
	}
	src, format, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return nil, errs.FatalWrap(err, errs.TypeParsing, "decode source image")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errs.Wrap(err, errs.TypeWorker, errs.SeverityHigh, "create output directory")
	}

	bounds := src.Bounds()
	ext := encodeExtForFormat(format, filepath.Ext(srcPath))

	renders := []struct {
		name string
		img  image.Image
	}{
		{objstore.DerivativeOriginal, fitWithin(src, originalMaxEdge)},
		{objstore.DerivativeThumbnail, coverCrop(src, thumbnailSize, thumbnailSize)},
		{objstore.DerivativeCrop3x2, coverCrop(src, crop3x2Width, crop3x2Height)},
		{objstore.DerivativeCrop4x3, coverCrop(src, crop4x3Width, crop4x3Height)},
		{objstore.DerivativeCrop16x9, coverCrop(src, crop16x9Width, crop16x9Height)},
	}

	result := &MediaResult{
		Derivatives: make(map[string]DerivativeFile, len(renders)),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Format:      format,
	}
	for _, r := range renders {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		path := filepath.Join(outDir, fmt.Sprintf("%s-%s%s", baseName, r.name, ext))
		size, err := encodeToFile(r.img, path)
		if err != nil {
			return nil, errs.Wrap(err, errs.TypeWorker, errs.SeverityHigh,
				fmt.Sprintf("encode %s derivative", r.name))
		}
		result.Derivatives[r.name] = DerivativeFile{Name: r.name, Path: path, Size: size}
	}

	p.log.Debug("Image rendered",
		"source", srcPath,
		"format", format,
		"width", result.Width,
		"height", result.Height,
		"derivatives", len(result.Derivatives),
	)
	return result, nil
}

// fitWithin downscales so the longest edge is at most maxEdge. Images already
// within the bound are returned as-is; this step never upscales.
func fitWithin(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	long := w
	if h > long {
		long = h
	}
	if long <= maxEdge {
		return src
	}
	scale := float64(maxEdge) / float64(long)
	dw := int(float64(w)*scale + 0.5)
	dh := int(float64(h)*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// coverCrop scales the source to cover the target box, then trims the excess
// evenly around the center.
func coverCrop(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()

	scale := float64(width) / float64(sw)
	if s := float64(height) / float64(sh); s > scale {
		scale = s
	}
	scaledW := int(float64(sw)*scale + 0.5)
	scaledH := int(float64(sh)*scale + 0.5)
	if scaledW < width {
		scaledW = width
	}
	if scaledH < height {
		scaledH = height
	}

	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, xdraw.Over, nil)

	x0 := (scaledW - width) / 2
	y0 := (scaledH - height) / 2
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(dst, dst.Bounds(), scaled, image.Pt(x0, y0), xdraw.Src)
	return dst
}

func encodeToFile(img image.Image, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	case ".gif":
		err = gif.Encode(f, img, nil)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 85})
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// encodeExtForFormat picks the output extension. Decodable-but-unencodable
// formats fall back to jpeg.
func encodeExtForFormat(format, srcExt string) string {
	switch format {
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	case "jpeg":
		return ".jpg"
	default:
		if e := strings.ToLower(srcExt); e == ".png" || e == ".gif" {
			return e
		}
		return ".jpg"
	}
}
