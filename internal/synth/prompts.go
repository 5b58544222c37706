package synth

import "fmt"

const metadataSchema = `{
  "name": "英文插件名，仅字母数字下划线",
  "author": "作者",
  "description": "一句话描述",
  "version": "1.0.0",
  "commands": [{"command": "指令名", "description": "指令说明"}],
  "metadata": {"dependencies": [%s], "repo_url": ""}%s
}`

const metadataPrompt = `你是AstrBot插件设计师。根据以下需求设计一个插件，只输出一个JSON对象，不要输出其他内容。

需求：
%s

JSON格式：
%s
%s`

const markdownPrompt = `为下面的AstrBot插件编写Markdown设计文档，包含功能说明、指令用法和实现要点。只输出Markdown。

需求：
%s

插件元数据：
%s`

const codePrompt = `根据元数据和设计文档，编写AstrBot插件的完整main.py。使用astrbot.api的Star和register，指令用filter.command注册。只输出一个python代码块。

插件元数据：
%s

设计文档：
%s`

const reviewPrompt = `审查下面的AstrBot插件代码是否正确实现了设计，并给出评分。只输出一个JSON对象：
{"approved": true或false, "satisfaction_score": 0到100, "reason": "理由", "issues": ["问题"], "suggestions": ["建议"]}

插件元数据：
%s

设计文档：
%s

代码：
` + "```python\n%s\n```"

const fixPrompt = `修复下面的AstrBot插件代码。只输出修复后的完整python代码块。

问题：
%s

建议：
%s

代码：
` + "```python\n%s\n```"

const refinePrompt = `根据用户反馈修改插件元数据。只输出修改后的JSON对象，格式与原对象相同。如需更新设计文档，放在"markdown"字段。

原元数据：
%s

用户反馈：
%s`

func renderMetadataPrompt(description string, opts Options, withMarkdown bool) string {
	deps := ""
	depRule := "不要声明第三方依赖，dependencies保持为空数组。"
	if opts.AllowDependencies {
		deps = `"需要的pip包"`
		depRule = "仅在确有需要时声明pip依赖。"
	}
	md := ""
	if withMarkdown {
		md = `,
  "markdown": "Markdown设计文档，包含功能说明、指令用法和实现要点"`
	}
	return fmt.Sprintf(metadataPrompt, description, fmt.Sprintf(metadataSchema, deps, md), depRule)
}
