package media

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// канонический MIME -> расширение, под которым файл уходит в Speech API
var audioFormats = map[string]string{
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/mp4":  ".m4a",
	"audio/aac":  ".aac",
	"audio/flac": ".flac",
}

var imageFormats = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var mimeAliases = map[string]string{
	"audio/oga":       "audio/ogg",
	"audio/opus":      "audio/ogg",
	"audio/x-ogg":     "audio/ogg",
	"application/ogg": "audio/ogg",
	"audio/mp3":       "audio/mpeg",
	"audio/mpeg3":     "audio/mpeg",
	"audio/x-mpeg":    "audio/mpeg",
	"audio/x-wav":     "audio/wav",
	"audio/wave":      "audio/wav",
	"audio/vnd.wave":  "audio/wav",
	"audio/x-m4a":     "audio/mp4",
	"audio/m4a":       "audio/mp4",
	"audio/x-aac":     "audio/aac",
	"audio/aacp":      "audio/aac",
	"audio/x-flac":    "audio/flac",
	"image/jpg":       "image/jpeg",
	"image/pjpeg":     "image/jpeg",
	"image/x-png":     "image/png",
}

var extFormats = map[string]string{
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// canonicalMIME убирает параметры и сводит синонимы к одному имени.
func canonicalMIME(raw string) string {
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(raw, ";", 2)[0])
	}
	mt = strings.ToLower(mt)
	if alias, ok := mimeAliases[mt]; ok {
		return alias
	}
	return mt
}

// resolveMIME: заявленный тип, затем расширение имени файла, затем сниффинг байтов.
func resolveMIME(declared, fileName string, data []byte) string {
	mt := canonicalMIME(declared)
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" {
		if byExt, ok := extFormats[ext]; ok {
			return byExt
		}
	}
	if len(data) == 0 {
		return mt
	}
	return canonicalMIME(mimetype.Detect(data).String())
}
