package docpipe

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// extractDocx parses a .docx by reading word/document.xml from the ZIP
// archive. Paragraphs are joined with newlines in document order.
func extractDocx(data []byte) (string, []string, error) {
	paragraphs, err := archiveParagraphs(data, "word/document.xml", "p")
	if err != nil {
		return "", nil, err
	}
	if len(paragraphs) == 0 {
		return "", []string{"docx contains no paragraph text"}, nil
	}
	return strings.Join(paragraphs, "\n"), nil, nil
}

// extractODT parses an .odt by reading content.xml. OpenDocument uses
// <text:p> for paragraphs and <text:h> for headings; both carry text.
func extractODT(data []byte) (string, []string, error) {
	paragraphs, err := archiveParagraphs(data, "content.xml", "p", "h")
	if err != nil {
		return "", nil, err
	}
	if len(paragraphs) == 0 {
		return "", []string{"odt contains no paragraph text"}, nil
	}
	return strings.Join(paragraphs, "\n"), nil, nil
}

// archiveParagraphs opens a ZIP-packaged office document, locates the main
// content XML, and collects the character data of every element whose local
// name is in blockElems, one string per block.
func archiveParagraphs(data []byte, contentName string, blockElems ...string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var contentFile *zip.File
	for _, f := range zr.File {
		if f.Name == contentName {
			contentFile = f
			break
		}
	}
	if contentFile == nil {
		return nil, fmt.Errorf("%s not found in archive", contentName)
	}

	rc, err := contentFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", contentName, err)
	}
	defer rc.Close()

	isBlock := func(local string) bool {
		for _, b := range blockElems {
			if local == b {
				return true
			}
		}
		return false
	}

	decoder := xml.NewDecoder(rc)
	var paragraphs []string
	var current strings.Builder
	depth := 0 // nesting depth of block elements; >0 means collecting

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if isBlock(t.Name.Local) {
				if depth == 0 {
					current.Reset()
				}
				depth++
			}
		case xml.CharData:
			if depth > 0 {
				current.Write(t)
			}
		case xml.EndElement:
			if isBlock(t.Name.Local) && depth > 0 {
				depth--
				if depth == 0 {
					if text := strings.TrimSpace(current.String()); text != "" {
						paragraphs = append(paragraphs, text)
					}
				}
			}
		}
	}

	return paragraphs, nil
}
