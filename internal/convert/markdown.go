package convert

import (
	"io"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/felo/eml2doc/internal/render"
)

// section headings lose their id attribute in Markdown; an explicit anchor
// keeps the index links working
var sectionHeading = regexp.MustCompile(`(?m)^## (\d+)\\?\. Email from`)

type markdownConverter struct{}

func (markdownConverter) Format() Format { return Markdown }

func (markdownConverter) Convert(doc *render.Document, w io.Writer) error {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())

	out, err := conv.ConvertString(doc.Content)
	if err != nil {
		return err
	}
	out = sectionHeading.ReplaceAllString(out, `<a id="email-$1"></a>`+"\n\n"+`## $1. Email from`)

	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	_, err = io.WriteString(w, out)
	return err
}
