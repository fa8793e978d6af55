package cli

import (
	"fmt"
	"io"

	"charm.land/glamour/v2"
	"github.com/FranksOps/gotot/internal/listing"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
)

// previewMarkdown converts the listing section of page to markdown. Pages
// without a listing section are converted whole.
func previewMarkdown(page *listing.Page) (string, error) {
	html := listing.ListingHTML(page)
	if html == "" {
		var err error
		if html, err = page.Doc.Html(); err != nil {
			return "", fmt.Errorf("render page html: %w", err)
		}
	}
	md, err := htmltomarkdown.ConvertString(html, converter.WithDomain(page.URL))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return fmt.Sprintf("# %s\n\n%s\n", page.URL, md), nil
}

func renderPreview(w io.Writer, page *listing.Page, wordWrap int) error {
	md, err := previewMarkdown(page)
	if err != nil {
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("render preview: %w", err)
	}
	_, err = fmt.Fprint(w, out)
	return err
}
