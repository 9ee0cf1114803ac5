package scanner

// Media family extension sets. Frozen at build time; classification never
// mutates them.

type mediaFamily int

const (
	familyUnknown mediaFamily = iota
	familyVideo
	familyAudio
	familyImage
	familyBook
	familyComic
	familyGame
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".m4v": true, ".avi": true, ".mov": true,
	".wmv": true, ".ts": true, ".m2ts": true, ".webm": true, ".mpg": true,
	".mpeg": true, ".flv": true, ".vob": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".m4a": true, ".m4b": true, ".aac": true,
	".ogg": true, ".oga": true, ".opus": true, ".wav": true, ".wma": true,
	".alac": true, ".aiff": true, ".ape": true, ".dsf": true,
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
	".bmp": true, ".tiff": true, ".heic": true, ".avif": true, ".raw": true,
	".cr2": true, ".nef": true, ".dng": true,
}

var bookExtensions = map[string]bool{
	".epub": true, ".mobi": true, ".azw3": true, ".pdf": true, ".fb2": true,
	".djvu": true,
}

var comicExtensions = map[string]bool{
	".cbz": true, ".cbr": true, ".cb7": true, ".cbt": true,
}

var gameExtensions = map[string]bool{
	".iso": true, ".rom": true, ".nes": true, ".sfc": true, ".smc": true,
	".gba": true, ".nds": true, ".z64": true, ".chd": true,
}

func familyOf(ext string) mediaFamily {
	switch {
	case videoExtensions[ext]:
		return familyVideo
	case audioExtensions[ext]:
		return familyAudio
	case imageExtensions[ext]:
		return familyImage
	case bookExtensions[ext]:
		return familyBook
	case comicExtensions[ext]:
		return familyComic
	case gameExtensions[ext]:
		return familyGame
	default:
		return familyUnknown
	}
}
