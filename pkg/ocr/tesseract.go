//go:build ocr

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs recognition through libtesseract. A fresh gosseract client
// is created per call, so one Tesseract may serve concurrent pages.
type Tesseract struct {
	opts       Options
	configFile string
}

// NewTesseract validates opts and prepares the engine. The engine mode is an
// init-only Tesseract parameter, so a non-default mode is written to a
// config file that is loaded when each client initializes.
func NewTesseract(opts Options) (*Tesseract, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	t := &Tesseract{opts: opts}
	if opts.EngineMode != DefaultEngineMode {
		f, err := os.CreateTemp("", "pagetext-tesseract-*.cfg")
		if err != nil {
			return nil, fmt.Errorf("create tesseract config: %w", err)
		}
		_, err = fmt.Fprintf(f, "tessedit_ocr_engine_mode %d\n", opts.EngineMode)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(f.Name())
			return nil, fmt.Errorf("write tesseract config: %w", err)
		}
		t.configFile = f.Name()
	}
	return t, nil
}

// Close removes the generated config file, if any.
func (t *Tesseract) Close() error {
	if t == nil || t.configFile == "" {
		return nil
	}
	err := os.Remove(t.configFile)
	t.configFile = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Recognize returns the page text as Tesseract reports it.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	client, err := t.newClient(ctx, img)
	if err != nil {
		return "", err
	}
	defer client.Close()
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract text: %w", err)
	}
	return text, nil
}

// Confidence returns the mean word-level confidence reported by Tesseract.
func (t *Tesseract) Confidence(ctx context.Context, img image.Image) (float64, error) {
	client, err := t.newClient(ctx, img)
	if err != nil {
		return 0, err
	}
	defer client.Close()
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return 0, fmt.Errorf("tesseract boxes: %w", err)
	}
	scores := make([]float64, 0, len(boxes))
	for _, box := range boxes {
		scores = append(scores, box.Confidence)
	}
	return MeanConfidence(scores), nil
}

func (t *Tesseract) newClient(ctx context.Context, img image.Image) (*gosseract.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("tesseract: nil image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page png: %w", err)
	}
	client := gosseract.NewClient()
	if err := t.configure(client); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		client.Close()
		return nil, fmt.Errorf("set image: %w", err)
	}
	return client, nil
}

func (t *Tesseract) configure(client *gosseract.Client) error {
	if t.opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.opts.TessdataPrefix); err != nil {
			return fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.opts.Languages...); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if t.configFile != "" {
		if err := client.SetConfigFile(t.configFile); err != nil {
			return fmt.Errorf("set config file: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(t.opts.PageSegMode)); err != nil {
		return fmt.Errorf("set page seg mode: %w", err)
	}
	if t.opts.Whitelist != "" {
		if err := client.SetWhitelist(t.opts.Whitelist); err != nil {
			return fmt.Errorf("set whitelist: %w", err)
		}
	}
	return nil
}
