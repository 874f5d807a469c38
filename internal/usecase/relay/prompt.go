package relay

import (
	"fmt"

	"persona-chat-relay/internal/domain"
)

const systemPromptTemplate = `你是%[1]s，请严格按照以下角色设定进行对话：

%[2]s

请记住：
1. 保持符合角色设定的对话风格
2. 回复要自然、流畅
3. 保持微信聊天风格，回复不要过长
4. 不要直接复制人设档案内容

现在开始，你就是%[1]s，用符合上述设定的方式与我进行微信风格的对话。`

// SystemPrompt renders the persona's system message.
func SystemPrompt(p domain.Persona) string {
	return fmt.Sprintf(systemPromptTemplate, p.Name, p.Profile)
}
