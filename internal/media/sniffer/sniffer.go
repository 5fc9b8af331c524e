package sniffer

import (
	"bytes"
	"errors"
	"mime"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeAVIF MediaType = "avif"
	TypeSVG  MediaType = "svg"
	TypeMP4  MediaType = "mp4"
	TypeMOV  MediaType = "mov"
	TypeWEBM MediaType = "webm"
	TypeMP3  MediaType = "mp3"
	TypeWAV  MediaType = "wav"
	TypePDF  MediaType = "pdf"
	TypeZIP  MediaType = "zip"
)

// HeadSize is the number of leading bytes DetectHead looks at.
const HeadSize = 512

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	switch {
	case isJPEG(head):
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	case isRIFF(head, "WEBP"):
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	case isRIFF(head, "WAVE"):
		return Result{Type: TypeWAV, MIME: "audio/wav"}, nil
	case isFtyp(head, "avif"):
		return Result{Type: TypeAVIF, MIME: "image/avif"}, nil
	case isFtyp(head, "qt  "):
		return Result{Type: TypeMOV, MIME: "video/quicktime"}, nil
	case isFtyp(head, ""):
		return Result{Type: TypeMP4, MIME: "video/mp4"}, nil
	case bytes.HasPrefix(head, []byte{0x1a, 0x45, 0xdf, 0xa3}):
		return Result{Type: TypeWEBM, MIME: "video/webm"}, nil
	case bytes.HasPrefix(head, []byte("ID3")) || (len(head) > 1 && head[0] == 0xff && head[1]&0xe0 == 0xe0 && head[1] != 0xff):
		return Result{Type: TypeMP3, MIME: "audio/mpeg"}, nil
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return Result{Type: TypePDF, MIME: "application/pdf"}, nil
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return Result{Type: TypeZIP, MIME: "application/zip"}, nil
	case isSVG(head):
		return Result{Type: TypeSVG, MIME: "image/svg+xml"}, nil
	}

	return Result{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return bytes.HasPrefix(head, pngMagic)
}

func isGIF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a"))
}

func isRIFF(head []byte, form string) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte(form))
}

// isFtyp matches ISO base media files. An empty brand matches any brand.
func isFtyp(head []byte, brand string) bool {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return false
	}
	if brand == "" {
		return true
	}
	return string(head[8:12]) == brand || bytes.Contains(head[12:min(len(head), 64)], []byte(brand))
}

func isSVG(head []byte) bool {
	trimmed := strings.TrimSpace(string(head))
	return strings.HasPrefix(trimmed, "<svg") || strings.HasPrefix(trimmed, "<?xml")
}

// NormalizeMIME lowercases a Content-Type value and drops its parameters.
// Unparseable values normalize to "".
func NormalizeMIME(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mediaType
}
