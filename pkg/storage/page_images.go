package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
)

// PageImagePrefix is the key prefix shared by all page images of a document.
func PageImagePrefix(documentID string) string {
	return "documents/" + documentID + "/pages/"
}

// PageImageKey is the object key of a rendered page. Pages are numbered from 1.
func PageImageKey(documentID string, index int) string {
	return fmt.Sprintf("%s%04d.png", PageImagePrefix(documentID), index+1)
}

// PutPageImage encodes img as PNG and uploads it under PageImageKey.
func PutPageImage(ctx context.Context, store ObjectStore, documentID string, index int, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode page %d: %w", index+1, err)
	}
	key := PageImageKey(documentID, index)
	if err := store.Put(ctx, key, &buf, int64(buf.Len()), "image/png"); err != nil {
		return "", err
	}
	return key, nil
}

// DeletePageImages removes every stored page image of a document.
func DeletePageImages(ctx context.Context, store ObjectStore, documentID string) error {
	return store.DeletePrefix(ctx, PageImagePrefix(documentID))
}
