package plugin

import (
	"strings"
)

const (
	previewCommandLimit  = 5
	previewMarkdownRunes = 400
)

// RenderPreview renders the human-readable proposal shown before the
// confirmation gate. The same text is used for refined proposals.
func RenderPreview(md Metadata, markdown string) string {
	lines := []string{
		"插件名称：" + orDefault(md.Name, "未知"),
		"作者：" + orDefault(md.Author, "未知"),
		"描述：" + orDefault(md.Description, "无描述"),
		"版本：" + md.VersionOrDefault(),
	}

	if len(md.Commands) > 0 {
		lines = append(lines, "指令预览：")
		for i, c := range md.Commands {
			if i == previewCommandLimit {
				break
			}
			if c.Bare {
				lines = append(lines, "  - "+c.Command)
				continue
			}
			lines = append(lines, "  - "+orDefault(c.Command, "未知指令")+": "+c.Description)
		}
	}

	doc := strings.TrimSpace(markdown)
	if doc != "" {
		runes := []rune(doc)
		snippet := doc
		if len(runes) > previewMarkdownRunes {
			snippet = string(runes[:previewMarkdownRunes]) + "..."
		}
		lines = append(lines, "\nMarkdown文档预览：", snippet)
	}

	return strings.Join(lines, "\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
