package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrMalformedContainer is returned when META-INF/container.xml is absent
// or cannot be parsed as XML.
var ErrMalformedContainer = fmt.Errorf("epub: malformed OCF container")

// ErrUnsupportedPackage is returned when the OPF rootfile cannot be parsed.
var ErrUnsupportedPackage = fmt.Errorf("epub: unsupported package document")

// ErrAssetMissing is returned when a manifest item's href has no matching
// entry in the archive.
var ErrAssetMissing = fmt.Errorf("epub: referenced asset missing from archive")

// UnpackedBook is the result of unpacking an EPUB's OCF container: raw
// chapter XHTML in spine order plus everything the Normalizer and Exporter
// need downstream.
type UnpackedBook struct {
	Title      string
	Author     string
	Language   string
	Publisher  string
	Identifier string
	Chapters   []UnpackedChapter // in spine order
	TOC        []TOCEntry
	Assets     []Asset
	CoverHref  string
}

// UnpackedChapter is one spine item's raw (pre-normalization) XHTML.
type UnpackedChapter struct {
	Href  string
	XHTML string
}

type ocfContainer struct {
	XMLName   xml.Name `xml:"container"`
	RootFiles struct {
		RootFile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		Title      []string `xml:"title"`
		Creator    []string `xml:"creator"`
		Language   []string `xml:"language"`
		Publisher  []string `xml:"publisher"`
		Identifier []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
		} `xml:"identifier"`
		Meta []struct {
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Property string `xml:"property,attr"`
			Text     string `xml:",chardata"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Item []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		TOC     string `xml:"toc,attr"`
		Itemref []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// Unpack treats data as a ZIP archive, locates and parses its OCF
// container and OPF package document, and materializes chapter XHTML in
// spine order plus extracted assets and the derived TOC.
func Unpack(data []byte) (*UnpackedBook, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive: %v", ErrMalformedContainer, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	containerFile, ok := files["META-INF/container.xml"]
	if !ok {
		return nil, fmt.Errorf("%w: missing META-INF/container.xml", ErrMalformedContainer)
	}
	containerBytes, err := readZipFile(containerFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}

	var container ocfContainer
	if err := xml.Unmarshal(containerBytes, &container); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	if len(container.RootFiles.RootFile) == 0 {
		return nil, fmt.Errorf("%w: no rootfile declared", ErrMalformedContainer)
	}
	opfPath := container.RootFiles.RootFile[0].FullPath

	opfFile, ok := files[opfPath]
	if !ok {
		return nil, fmt.Errorf("%w: rootfile %q not found in archive", ErrUnsupportedPackage, opfPath)
	}
	opfBytes, err := readZipFile(opfFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPackage, err)
	}

	var pkg opfPackage
	if err := xml.Unmarshal(opfBytes, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPackage, err)
	}

	opfDir := path.Dir(opfPath)

	type manifestItem struct {
		href, mediaType string
		properties      []string
	}
	manifest := make(map[string]manifestItem, len(pkg.Manifest.Item))
	for _, item := range pkg.Manifest.Item {
		manifest[item.ID] = manifestItem{
			href:       resolveHref(opfDir, item.Href),
			mediaType:  item.MediaType,
			properties: strings.Fields(item.Properties),
		}
	}

	book := &UnpackedBook{}
	if len(pkg.Metadata.Title) > 0 {
		book.Title = pkg.Metadata.Title[0]
	}
	if len(pkg.Metadata.Creator) > 0 {
		book.Author = pkg.Metadata.Creator[0]
	}
	if len(pkg.Metadata.Language) > 0 {
		book.Language = pkg.Metadata.Language[0]
	}
	if len(pkg.Metadata.Publisher) > 0 {
		book.Publisher = pkg.Metadata.Publisher[0]
	}
	if len(pkg.Metadata.Identifier) > 0 {
		book.Identifier = strings.TrimSpace(pkg.Metadata.Identifier[0].Text)
	}

	spineIndexByHref := make(map[string]int)
	for _, itemref := range pkg.Spine.Itemref {
		item, ok := manifest[itemref.IDRef]
		if !ok {
			continue
		}
		if item.mediaType != "application/xhtml+xml" {
			continue
		}
		f, ok := files[item.href]
		if !ok {
			return nil, fmt.Errorf("%w: spine item %q", ErrAssetMissing, item.href)
		}
		raw, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %q: %v", ErrAssetMissing, item.href, err)
		}
		spineIndexByHref[item.href] = len(book.Chapters)
		book.Chapters = append(book.Chapters, UnpackedChapter{Href: item.href, XHTML: string(raw)})
	}

	// Assets: every manifest item that isn't one of the spine chapters above.
	chapterHrefs := make(map[string]bool, len(book.Chapters))
	for _, ch := range book.Chapters {
		chapterHrefs[ch.Href] = true
	}
	for _, item := range manifest {
		if chapterHrefs[item.href] {
			continue
		}
		f, ok := files[item.href]
		if !ok {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			continue
		}
		book.Assets = append(book.Assets, Asset{Href: item.href, MediaType: item.mediaType, Data: data})
	}

	// Cover: manifest item carrying properties="cover-image", else
	// <meta name="cover" content="{id}">.
	for id, item := range manifest {
		for _, p := range item.properties {
			if p == "cover-image" {
				book.CoverHref = item.href
			}
		}
		_ = id
	}
	if book.CoverHref == "" {
		for _, m := range pkg.Metadata.Meta {
			if m.Name == "cover" {
				if item, ok := manifest[m.Content]; ok {
					book.CoverHref = item.href
				}
			}
		}
	}

	// TOC: prefer the EPUB 3 nav document (manifest item with properties
	// containing "nav"); fall back to the NCX referenced by spine/@toc.
	var navHref string
	for _, item := range manifest {
		for _, p := range item.properties {
			if p == "nav" {
				navHref = item.href
			}
		}
	}
	if navHref != "" {
		if f, ok := files[navHref]; ok {
			if raw, err := readZipFile(f); err == nil {
				book.TOC = parseNavTOC(raw, spineIndexByHref, path.Dir(navHref))
			}
		}
	} else if pkg.Spine.TOC != "" {
		if item, ok := manifest[pkg.Spine.TOC]; ok {
			if f, ok := files[item.href]; ok {
				if raw, err := readZipFile(f); err == nil {
					book.TOC = parseNCXTOC(raw, spineIndexByHref, path.Dir(item.href))
				}
			}
		}
	}

	return book, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// resolveHref joins an OPF-relative href against the OPF's directory,
// normalizing "." segments, matching how manifest hrefs are declared
// relative to the rootfile's location rather than the archive root.
func resolveHref(baseDir, href string) string {
	if baseDir == "." || baseDir == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(baseDir, href))
}
