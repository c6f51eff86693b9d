// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package walker

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

var assetPointerMapRe = regexp.MustCompile(`(?s)assetPointerMap\s*=\s*(\{.*?\})\s*;?\s*$`)

// ExtractAssetPointerMap reads the sibling conversation.html (if present)
// and pulls out the assetPointerMap literal it embeds, mapping
// "file-service://..." pointers to the on-disk filenames the export
// actually wrote to the media folder. The html/json exporter embeds the
// map as an inline <script> assignment, so the document is parsed with
// goquery and only the text of <script> tags is searched — scanning the
// full byte stream risks matching the literal string inside an escaped
// JSON blob elsewhere on the page.
func ExtractAssetPointerMap(htmlPath string) (map[string]string, error) {
	f, err := os.Open(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", htmlPath, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", htmlPath, err)
	}

	var raw []byte
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		m := assetPointerMapRe.FindStringSubmatch(sel.Text())
		if m == nil {
			return true
		}
		raw = []byte(m[1])
		return false
	})
	if raw == nil {
		return map[string]string{}, nil
	}

	var pointerMap map[string]string
	if err := json.Unmarshal(raw, &pointerMap); err != nil {
		return nil, fmt.Errorf("parse assetPointerMap in %s: %w", htmlPath, err)
	}
	return pointerMap, nil
}

// MediaManifest reads the sibling media_manifest.json (if present), which
// maps display names to the real filenames written to the media folder.
func MediaManifest(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var manifest map[string]string
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return manifest, nil
}
