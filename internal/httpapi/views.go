package httpapi

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed web/templates/*.html web/static/*
var webFS embed.FS

func loadTemplates() (*template.Template, error) {
	return template.New("").ParseFS(webFS, "web/templates/*.html")
}

func staticFS() (http.FileSystem, error) {
	sub, err := fs.Sub(webFS, "web/static")
	if err != nil {
		return nil, err
	}
	return http.FS(sub), nil
}
