package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Exporter assembles normalized chapters, aligned audio, and assets into a
// conformant EPUB 3 package, adding SMIL Media Overlays for every chapter
// that has a SyncTable.
type Exporter struct {
	book          Book
	chapters      []Chapter
	toc           []TOCEntry
	assets        []Asset
	chapterAudios map[string]ChapterAudio // keyed by chapter ID
	narrator      string
	coverData     []byte
	coverMedia    string
}

// NewExporter creates a new Exporter for book with its chapters in spine
// order. toc may be nil, in which case a flat chapter list is used for
// navigation.
func NewExporter(book Book, chapters []Chapter, toc []TOCEntry) *Exporter {
	return &Exporter{
		book:          book,
		chapters:      chapters,
		toc:           toc,
		chapterAudios: make(map[string]ChapterAudio),
	}
}

// SetNarrator sets the narrator metadata.
func (e *Exporter) SetNarrator(name string) {
	e.narrator = name
}

// SetCoverImage sets raw cover image bytes and its media type (e.g. "image/jpeg").
func (e *Exporter) SetCoverImage(data []byte, mediaType string) {
	e.coverData = data
	e.coverMedia = mediaType
}

// SetAssets attaches non-XHTML manifest items (images, fonts, extra styles)
// carried through from the unpacked source package.
func (e *Exporter) SetAssets(assets []Asset) {
	e.assets = assets
}

// AddChapterAudio attaches a chapter's aligned audio and SyncTable.
// Chapters with no entry here are exported without a media-overlay.
func (e *Exporter) AddChapterAudio(chapterID string, audio ChapterAudio) {
	e.chapterAudios[chapterID] = audio
}

// Build validates the assembled EPUB and writes it to outputPath.
func (e *Exporter) Build(outputPath string) error {
	if err := Validate(e); err != nil {
		return fmt.Errorf("epub: export validation failed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	return e.WriteTo(f)
}

// WriteTo validates and writes the EPUB to w.
func (e *Exporter) WriteTo(w io.Writer) error {
	if err := Validate(e); err != nil {
		return fmt.Errorf("epub: export validation failed: %w", err)
	}

	zw := zip.NewWriter(w)
	defer zw.Close()

	if err := e.writeMimetype(zw); err != nil {
		return err
	}
	if err := e.writeContainer(zw); err != nil {
		return err
	}
	if err := e.writePackage(zw); err != nil {
		return err
	}
	if err := e.writeNavigation(zw); err != nil {
		return err
	}
	if err := e.writeNCX(zw); err != nil {
		return err
	}
	if err := e.writeStylesheet(zw); err != nil {
		return err
	}

	for _, ch := range e.chapters {
		if err := e.writeChapter(zw, ch); err != nil {
			return fmt.Errorf("failed to write chapter %s: %w", ch.ID, err)
		}
	}

	for _, ch := range e.chapters {
		if audio, ok := e.chapterAudios[ch.ID]; ok {
			if err := e.writeSMIL(zw, ch.ID, audio); err != nil {
				return fmt.Errorf("failed to write SMIL for %s: %w", ch.ID, err)
			}
		}
	}

	for _, ch := range e.chapters {
		if audio, ok := e.chapterAudios[ch.ID]; ok {
			if err := e.writeAudioFile(zw, audio); err != nil {
				return fmt.Errorf("failed to write audio for %s: %w", ch.ID, err)
			}
		}
	}

	for _, a := range e.assets {
		if err := e.writeAsset(zw, a); err != nil {
			return fmt.Errorf("failed to write asset %s: %w", a.Href, err)
		}
	}

	if e.coverData != nil {
		if err := e.writeCoverImage(zw); err != nil {
			return fmt.Errorf("failed to write cover image: %w", err)
		}
	}

	return nil
}

func (e *Exporter) writeMimetype(zw *zip.Writer) error {
	header := &zip.FileHeader{Name: "mimetype", Method: zip.Store}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	_, err = w.Write([]byte("application/epub+zip"))
	return err
}

func (e *Exporter) writeContainer(zw *zip.Writer) error {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

	w, err := zw.Create("META-INF/container.xml")
	if err != nil {
		return fmt.Errorf("failed to create container.xml: %w", err)
	}
	_, err = w.Write([]byte(content))
	return err
}

func (e *Exporter) writePackage(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/content.opf")
	if err != nil {
		return fmt.Errorf("failed to create content.opf: %w", err)
	}
	_, err = w.Write([]byte(e.generatePackage()))
	return err
}

func (e *Exporter) generatePackage() string {
	var sb strings.Builder

	var totalDurationMS int
	for _, audio := range e.chapterAudios {
		totalDurationMS += audio.DurationMS
	}

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)

	sb.WriteString(fmt.Sprintf("    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", e.generateUUID()))
	sb.WriteString(fmt.Sprintf("    <dc:title>%s</dc:title>\n", escapeXML(e.book.Title)))
	sb.WriteString(fmt.Sprintf("    <dc:creator>%s</dc:creator>\n", escapeXML(e.book.Author)))

	lang := e.book.Language
	if lang == "" {
		lang = "en"
	}
	sb.WriteString(fmt.Sprintf("    <dc:language>%s</dc:language>\n", lang))

	if e.book.Publisher != "" {
		sb.WriteString(fmt.Sprintf("    <dc:publisher>%s</dc:publisher>\n", escapeXML(e.book.Publisher)))
	}

	sb.WriteString(fmt.Sprintf("    <meta property=\"dcterms:modified\">%s</meta>\n",
		time.Now().UTC().Format("2006-01-02T15:04:05Z")))

	if totalDurationMS > 0 {
		sb.WriteString(fmt.Sprintf("    <meta property=\"media:duration\">%s</meta>\n",
			formatClockTime(totalDurationMS)))
		sb.WriteString("    <meta property=\"media:active-class\">-epub-media-overlay-active</meta>\n")
	}

	if e.coverData != nil {
		sb.WriteString("    <meta name=\"cover\" content=\"cover-image\"/>\n")
	}

	if e.narrator != "" {
		sb.WriteString(fmt.Sprintf("    <meta property=\"media:narrator\">%s</meta>\n", escapeXML(e.narrator)))
	}

	sb.WriteString("  </metadata>\n\n")

	sb.WriteString("  <manifest>\n")
	sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	sb.WriteString("    <item id=\"style\" href=\"styles/style.css\" media-type=\"text/css\"/>\n")

	if e.coverData != nil {
		ext := extensionForMediaType(e.coverMedia)
		sb.WriteString(fmt.Sprintf("    <item id=\"cover-image\" href=\"images/cover%s\" media-type=\"%s\" properties=\"cover-image\"/>\n",
			ext, e.coverMedia))
	}

	for _, a := range e.assets {
		sb.WriteString(fmt.Sprintf("    <item id=\"%s\" href=\"assets/%s\" media-type=\"%s\"/>\n",
			assetID(a.Href), a.Href, a.MediaType))
	}

	for _, ch := range e.chapters {
		if _, hasAudio := e.chapterAudios[ch.ID]; hasAudio {
			sb.WriteString(fmt.Sprintf("    <item id=\"%s\" href=\"chapters/%s.xhtml\" media-type=\"application/xhtml+xml\" media-overlay=\"%s_overlay\"/>\n",
				ch.ID, ch.ID, ch.ID))
		} else {
			sb.WriteString(fmt.Sprintf("    <item id=\"%s\" href=\"chapters/%s.xhtml\" media-type=\"application/xhtml+xml\"/>\n",
				ch.ID, ch.ID))
		}
	}

	for _, ch := range e.chapters {
		if audio, hasAudio := e.chapterAudios[ch.ID]; hasAudio {
			sb.WriteString(fmt.Sprintf("    <item id=\"%s_overlay\" href=\"smil/%s.smil\" media-type=\"application/smil+xml\" duration=\"%s\"/>\n",
				ch.ID, ch.ID, formatClockTime(audio.DurationMS)))
		}
	}

	for _, ch := range e.chapters {
		if audio, hasAudio := e.chapterAudios[ch.ID]; hasAudio {
			audioFilename := filepath.Base(audio.AudioFile)
			sb.WriteString(fmt.Sprintf("    <item id=\"%s_audio\" href=\"audio/%s\" media-type=\"audio/mpeg\"/>\n",
				ch.ID, audioFilename))
		}
	}

	sb.WriteString("  </manifest>\n\n")

	sb.WriteString("  <spine toc=\"ncx\">\n")
	for _, ch := range e.chapters {
		sb.WriteString(fmt.Sprintf("    <itemref idref=\"%s\"/>\n", ch.ID))
	}
	sb.WriteString("  </spine>\n")

	sb.WriteString("</package>\n")

	return sb.String()
}

func (e *Exporter) writeNavigation(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/nav.xhtml")
	if err != nil {
		return fmt.Errorf("failed to create nav.xhtml: %w", err)
	}
	_, err = w.Write([]byte(e.generateNavigation()))
	return err
}

func (e *Exporter) generateNavigation() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Table of Contents</title>
  <link rel="stylesheet" type="text/css" href="styles/style.css"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>Table of Contents</h1>
    <ol>
`)

	if len(e.toc) > 0 {
		e.writeTOCEntries(&sb, e.toc)
	} else {
		for _, ch := range e.chapters {
			sb.WriteString(fmt.Sprintf("      <li><a href=\"chapters/%s.xhtml\">%s</a></li>\n",
				ch.ID, escapeXML(ch.Title)))
		}
	}

	sb.WriteString(`    </ol>
  </nav>
</body>
</html>
`)

	return sb.String()
}

func (e *Exporter) writeTOCEntries(sb *strings.Builder, entries []TOCEntry) {
	for _, entry := range entries {
		href := entry.Href
		if idx := entry.ChapterIndex; idx >= 0 && idx < len(e.chapters) {
			href = fmt.Sprintf("chapters/%s.xhtml", e.chapters[idx].ID)
		}
		if len(entry.Children) == 0 {
			sb.WriteString(fmt.Sprintf("      <li><a href=\"%s\">%s</a></li>\n", href, escapeXML(entry.Title)))
			continue
		}
		sb.WriteString(fmt.Sprintf("      <li>\n        <a href=\"%s\">%s</a>\n        <ol>\n", href, escapeXML(entry.Title)))
		e.writeTOCEntries(sb, entry.Children)
		sb.WriteString("        </ol>\n      </li>\n")
	}
}

func (e *Exporter) writeNCX(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/toc.ncx")
	if err != nil {
		return fmt.Errorf("failed to create toc.ncx: %w", err)
	}
	_, err = w.Write([]byte(e.generateNCX()))
	return err
}

func (e *Exporter) generateNCX() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="`)
	sb.WriteString(e.generateUUID())
	sb.WriteString(`"/>
    <meta name="dtb:depth" content="1"/>
    <meta name="dtb:totalPageCount" content="0"/>
    <meta name="dtb:maxPageNumber" content="0"/>
  </head>
  <docTitle>
    <text>`)
	sb.WriteString(escapeXML(e.book.Title))
	sb.WriteString(`</text>
  </docTitle>
  <navMap>
`)

	for i, ch := range e.chapters {
		sb.WriteString(fmt.Sprintf("    <navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", i+1, i+1))
		sb.WriteString(fmt.Sprintf("      <navLabel><text>%s</text></navLabel>\n", escapeXML(ch.Title)))
		sb.WriteString(fmt.Sprintf("      <content src=\"chapters/%s.xhtml\"/>\n", ch.ID))
		sb.WriteString("    </navPoint>\n")
	}

	sb.WriteString(`  </navMap>
</ncx>
`)

	return sb.String()
}

func (e *Exporter) writeStylesheet(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/styles/style.css")
	if err != nil {
		return fmt.Errorf("failed to create style.css: %w", err)
	}

	stylesheet := defaultStylesheet + `

/* Media Overlay active text highlighting */
.-epub-media-overlay-active {
  background-color: #ffffcc;
}
`
	_, err = w.Write([]byte(stylesheet))
	return err
}

func (e *Exporter) writeChapter(zw *zip.Writer, ch Chapter) error {
	filename := fmt.Sprintf("OEBPS/chapters/%s.xhtml", ch.ID)
	w, err := zw.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	_, err = w.Write([]byte(e.generateChapterXHTML(ch)))
	return err
}

// generateChapterXHTML wraps a chapter's already-normalized, already-tokenized
// body content. The normalizer is responsible for everything inside <body>.
func (e *Exporter) generateChapterXHTML(ch Chapter) string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>`)
	sb.WriteString(escapeXML(ch.Title))
	sb.WriteString(`</title>
  <link rel="stylesheet" type="text/css" href="../styles/style.css"/>
</head>
<body>
`)
	sb.WriteString(ch.Body)
	sb.WriteString("\n</body>\n</html>\n")

	return sb.String()
}

func (e *Exporter) writeSMIL(zw *zip.Writer, chapterID string, audio ChapterAudio) error {
	filename := fmt.Sprintf("OEBPS/smil/%s.smil", chapterID)
	w, err := zw.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}

	audioInEpub := ChapterAudio{
		ChapterID:  audio.ChapterID,
		AudioFile:  fmt.Sprintf("../audio/%s", filepath.Base(audio.AudioFile)),
		DurationMS: audio.DurationMS,
		Entries:    audio.Entries,
	}

	_, err = w.Write([]byte(generateSMIL(chapterID, audioInEpub)))
	return err
}

func (e *Exporter) writeAudioFile(zw *zip.Writer, audio ChapterAudio) error {
	audioFilename := filepath.Base(audio.AudioFile)
	destPath := fmt.Sprintf("OEBPS/audio/%s", audioFilename)

	data, err := os.ReadFile(audio.AudioFile)
	if err != nil {
		return fmt.Errorf("failed to read audio file %s: %w", audio.AudioFile, err)
	}

	header := &zip.FileHeader{Name: destPath, Method: zip.Store}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create %s in epub: %w", destPath, err)
	}
	_, err = w.Write(data)
	return err
}

func (e *Exporter) writeAsset(zw *zip.Writer, a Asset) error {
	destPath := fmt.Sprintf("OEBPS/assets/%s", a.Href)
	w, err := zw.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s in epub: %w", destPath, err)
	}
	_, err = w.Write(a.Data)
	return err
}

func (e *Exporter) writeCoverImage(zw *zip.Writer) error {
	ext := extensionForMediaType(e.coverMedia)
	destPath := fmt.Sprintf("OEBPS/images/cover%s", ext)

	w, err := zw.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s in epub: %w", destPath, err)
	}
	_, err = w.Write(e.coverData)
	return err
}

func extensionForMediaType(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func assetID(href string) string {
	return "asset-" + strings.NewReplacer("/", "-", ".", "-").Replace(href)
}

func (e *Exporter) generateUUID() string {
	if e.book.ISBN != "" {
		return "urn:isbn:" + e.book.ISBN
	}
	return "urn:uuid:" + uuid.New().String()
}

// escapeXML escapes special XML characters.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

const defaultStylesheet = `/* readalong ePub stylesheet */

body {
  font-family: Georgia, "Times New Roman", serif;
  font-size: 1em;
  line-height: 1.6;
  margin: 1em;
  text-align: justify;
}

h1, h2, h3, h4, h5, h6 {
  font-family: "Helvetica Neue", Helvetica, Arial, sans-serif;
  font-weight: bold;
  margin-top: 1.5em;
  margin-bottom: 0.5em;
  text-align: left;
}

h1 {
  font-size: 1.8em;
  border-bottom: 1px solid #ccc;
  padding-bottom: 0.3em;
}

h2 {
  font-size: 1.4em;
}

h3 {
  font-size: 1.2em;
}

p {
  margin: 0.5em 0;
  text-indent: 1.5em;
}

p:first-of-type,
h1 + p, h2 + p, h3 + p {
  text-indent: 0;
}

blockquote {
  margin: 1em 2em;
  font-style: italic;
  border-left: 3px solid #ccc;
  padding-left: 1em;
}
`
