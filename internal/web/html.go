package web

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// boilerplate elements never carry article text.
const boilerplate = "script, style, noscript, nav, footer, header, aside, iframe, svg, form"

func extractHTML(data []byte, contentType string) (title, text string, err error) {
	r, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		r = bytes.NewReader(data)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}

	title = normalizeWhitespace(doc.Find("title").First().Text())
	doc.Find(boilerplate).Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 || normalizeWhitespace(root.Text()) == "" {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 || normalizeWhitespace(root.Text()) == "" {
		root = doc.Find("body")
	}
	return title, normalizeWhitespace(root.Text()), nil
}
